/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package protocol implements the STTP framed command/response wire
// format: command and response frames, operational-mode negotiation,
// data-packet headers, and the state-flag encodings. It deliberately knows
// nothing about metadata schemas or filter-expression evaluation; those
// are out-of-scope collaborators the session hands opaque bytes to.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// ServerCommand identifies a command sent from subscriber to publisher.
type ServerCommand uint8

// Command codes, per STTP wire format.
const (
	CommandConnect                     ServerCommand = 0x00
	CommandMetadataRefresh             ServerCommand = 0x01
	CommandSubscribe                   ServerCommand = 0x02
	CommandUnsubscribe                 ServerCommand = 0x03
	CommandRotateCipherKeys            ServerCommand = 0x04
	CommandUpdateProcessingInterval    ServerCommand = 0x05
	CommandDefineOperationalModes      ServerCommand = 0x06
	CommandConfirmNotification         ServerCommand = 0x07
	CommandConfirmBufferBlock          ServerCommand = 0x08
	CommandConfirmUpdateBaseTimes      ServerCommand = 0x09
	CommandConfirmUpdateSignalIndexCache ServerCommand = 0x0A
	CommandConfirmUpdateCipherKeys     ServerCommand = 0x0B
	CommandGetPrimaryMetadataSchema    ServerCommand = 0x0C
	CommandGetSignalSelectionSchema    ServerCommand = 0x0D
)

// String renders a ServerCommand by name, falling back to its hex value.
func (c ServerCommand) String() string {
	switch c {
	case CommandConnect:
		return "CONNECT"
	case CommandMetadataRefresh:
		return "METADATAREFRESH"
	case CommandSubscribe:
		return "SUBSCRIBE"
	case CommandUnsubscribe:
		return "UNSUBSCRIBE"
	case CommandRotateCipherKeys:
		return "ROTATECIPHERKEYS"
	case CommandUpdateProcessingInterval:
		return "UPDATEPROCESSINGINTERVAL"
	case CommandDefineOperationalModes:
		return "DEFINEOPERATIONALMODES"
	case CommandConfirmNotification:
		return "CONFIRMNOTIFICATION"
	case CommandConfirmBufferBlock:
		return "CONFIRMBUFFERBLOCK"
	case CommandConfirmUpdateBaseTimes:
		return "CONFIRMUPDATEBASETIMES"
	case CommandConfirmUpdateSignalIndexCache:
		return "CONFIRMUPDATESIGNALINDEXCACHE"
	case CommandConfirmUpdateCipherKeys:
		return "CONFIRMUPDATECIPHERKEYS"
	case CommandGetPrimaryMetadataSchema:
		return "GETPRIMARYMETADATASCHEMA"
	case CommandGetSignalSelectionSchema:
		return "GETSIGNALSELECTIONSCHEMA"
	default:
		return fmt.Sprintf("COMMAND(0x%02X)", uint8(c))
	}
}

// ServerResponse identifies a response sent from publisher to subscriber.
type ServerResponse uint8

// Response codes, per STTP wire format.
const (
	ResponseSucceeded             ServerResponse = 0x80
	ResponseFailed                ServerResponse = 0x81
	ResponseDataPacket            ServerResponse = 0x82
	ResponseUpdateSignalIndexCache ServerResponse = 0x83
	ResponseUpdateBaseTimes       ServerResponse = 0x84
	ResponseUpdateCipherKeys      ServerResponse = 0x85
	ResponseDataStartTime         ServerResponse = 0x86
	ResponseProcessingComplete    ServerResponse = 0x87
	ResponseBufferBlock           ServerResponse = 0x88
	ResponseNotify                ServerResponse = 0x89
	ResponseConfigurationChanged  ServerResponse = 0x8A
	ResponseNoOp                  ServerResponse = 0xFF
)

// String renders a ServerResponse by name, falling back to its hex value.
func (r ServerResponse) String() string {
	switch r {
	case ResponseSucceeded:
		return "SUCCEEDED"
	case ResponseFailed:
		return "FAILED"
	case ResponseDataPacket:
		return "DATAPACKET"
	case ResponseUpdateSignalIndexCache:
		return "UPDATESIGNALINDEXCACHE"
	case ResponseUpdateBaseTimes:
		return "UPDATEBASETIMES"
	case ResponseUpdateCipherKeys:
		return "UPDATECIPHERKEYS"
	case ResponseDataStartTime:
		return "DATASTARTTIME"
	case ResponseProcessingComplete:
		return "PROCESSINGCOMPLETE"
	case ResponseBufferBlock:
		return "BUFFERBLOCK"
	case ResponseNotify:
		return "NOTIFY"
	case ResponseConfigurationChanged:
		return "CONFIGURATIONCHANGED"
	case ResponseNoOp:
		return "NOOP"
	default:
		return fmt.Sprintf("RESPONSE(0x%02X)", uint8(r))
	}
}

// OperationalModes is the 32-bit flag word negotiated at connect time.
type OperationalModes uint32

// OperationalModes bit masks and flags.
const (
	OpModeVersionMask OperationalModes = 0x000000FF
	OpModeEncodingMask OperationalModes = 0x00000300

	OpModeExtensionMask OperationalModes = 0x00FF0000

	OpModeReceiveExternalMetadata OperationalModes = 0x02000000
	OpModeReceiveInternalMetadata OperationalModes = 0x04000000

	OpModeCompressPayloadData      OperationalModes = 0x20000000
	OpModeCompressSignalIndexCache OperationalModes = 0x40000000
	OpModeCompressMetadata         OperationalModes = 0x80000000

	OpModeNoFlags OperationalModes = 0x00000000
)

// ProtocolVersion is the version this build implements.
const ProtocolVersion = 2

// OperationalEncoding identifies the string encoding requested in
// OperationalModes bits 8-9. This revision only supports UTF-8.
type OperationalEncoding uint32

// Supported string encodings.
const (
	EncodingUTF16LE OperationalEncoding = 0x00000000
	EncodingUTF16BE OperationalEncoding = 0x00000100
	EncodingUTF8    OperationalEncoding = 0x00000200
)

// Version returns the negotiated protocol version (bits 0-7).
func (m OperationalModes) Version() uint8 {
	return uint8(m & OpModeVersionMask)
}

// Encoding returns the negotiated string encoding (bits 8-9).
func (m OperationalModes) Encoding() OperationalEncoding {
	return OperationalEncoding(m & OpModeEncodingMask)
}

// ExtensionID returns the implementation-specific extension id (bits 16-23).
// Zero means no extension is requested.
func (m OperationalModes) ExtensionID() uint8 {
	return uint8((m & OpModeExtensionMask) >> 16)
}

// DefaultOperationalModes returns the mode word this implementation sends
// as its own DEFINEOPERATIONALMODES payload: current version, UTF-8
// encoding, no extension, and every compression flag requested.
func DefaultOperationalModes() OperationalModes {
	return OperationalModes(ProtocolVersion) |
		OperationalModes(EncodingUTF8) |
		OpModeReceiveInternalMetadata |
		OpModeCompressPayloadData |
		OpModeCompressSignalIndexCache |
		OpModeCompressMetadata
}

// DataPacketFlags is the per-packet byte on a DATAPACKET response selecting
// compact-vs-compressed payload encoding and the active cache/time-index
// generation slots.
type DataPacketFlags byte

// DataPacketFlags bit definitions.
const (
	DataPacketCompact     DataPacketFlags = 0x02
	DataPacketCipherIndex DataPacketFlags = 0x04
	DataPacketCompressed  DataPacketFlags = 0x08
	DataPacketCacheIndex  DataPacketFlags = 0x10
	DataPacketNoFlags     DataPacketFlags = 0x00
)

// CommandFrame is a subscriber -> publisher message.
type CommandFrame struct {
	Command ServerCommand
	Payload []byte
}

// MarshalBinary encodes f as a command frame: 1-byte command code, 4-byte
// big-endian payload length, payload.
func (f *CommandFrame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 5+len(f.Payload))
	buf[0] = byte(f.Command)
	binary.BigEndian.PutUint32(buf[1:], uint32(len(f.Payload)))
	copy(buf[5:], f.Payload)
	return buf, nil
}

// ResponseFrame is a publisher -> subscriber message. On the TCP command
// channel it is prefixed on the wire by a 4-byte big-endian total length;
// UDP data-channel datagrams omit that prefix (one datagram == one
// response) and so are decoded with DecodeResponseBody instead.
type ResponseFrame struct {
	Response        ServerResponse
	InResponseTo    ServerCommand
	Payload         []byte
}

const responseHeaderSize = 1 + 1 + 4 // response code, in-response-to, internal length

// MarshalBinary encodes f as the body (response code, in-response-to code,
// internal length, payload) used on both channels; TCP callers additionally
// prefix the 4-byte total length via WriteResponseFrame.
func (f *ResponseFrame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, responseHeaderSize+len(f.Payload))
	buf[0] = byte(f.Response)
	buf[1] = byte(f.InResponseTo)
	binary.BigEndian.PutUint32(buf[2:], uint32(len(f.Payload)))
	copy(buf[6:], f.Payload)
	return buf, nil
}

// DecodeResponseBody parses the response-code/in-response-to/internal
// length/payload body of a response frame from buf (without any leading
// total-length prefix). The internal length field is not validated against
// len(payload); per the reference implementation it is informational only.
func DecodeResponseBody(buf []byte) (*ResponseFrame, error) {
	if len(buf) < responseHeaderSize {
		return nil, fmt.Errorf("%w: response body needs at least %d bytes, got %d", ErrProtocolViolation, responseHeaderSize, len(buf))
	}
	f := &ResponseFrame{
		Response:     ServerResponse(buf[0]),
		InResponseTo: ServerCommand(buf[1]),
	}
	f.Payload = append([]byte(nil), buf[6:]...)
	return f, nil
}
