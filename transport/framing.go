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

package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/gridprotectionalliance/go-sttp/protocol"
)

// MaxFrameLength caps the payload/body length accepted from the wire,
// guarding against a corrupt or hostile length field driving an enormous
// allocation.
const MaxFrameLength = 64 * 1024 * 1024

// WriteCommandFrame writes a command frame (command code, 4-byte
// big-endian payload length, payload) and flushes it.
func (s *Stream) WriteCommandFrame(f *protocol.CommandFrame) error {
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := s.Write(buf); err != nil {
		return fmt.Errorf("writing command frame: %w", err)
	}
	return s.Flush()
}

// ReadCommandFrame reads one command frame from the stream: used by the
// publisher side reading subscriber commands.
func (s *Stream) ReadCommandFrame() (*protocol.CommandFrame, error) {
	cmdByte, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	length, err := s.ReadUint32BE()
	if err != nil {
		return nil, err
	}
	if length > MaxFrameLength {
		return nil, fmt.Errorf("%w: command payload length %d exceeds maximum %d", protocol.ErrProtocolViolation, length, MaxFrameLength)
	}
	payload, err := s.ReadExact(int(length))
	if err != nil {
		return nil, err
	}
	return &protocol.CommandFrame{Command: protocol.ServerCommand(cmdByte), Payload: payload}, nil
}

// WriteResponseFrameTCP writes a response frame on the TCP command
// channel: a 4-byte big-endian total-length prefix, then the response
// body (response code, in-response-to code, internal length, payload).
func (s *Stream) WriteResponseFrameTCP(f *protocol.ResponseFrame) error {
	body, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	if _, err := s.Write(header); err != nil {
		return fmt.Errorf("writing response total length: %w", err)
	}
	if _, err := s.Write(body); err != nil {
		return fmt.Errorf("writing response body: %w", err)
	}
	return s.Flush()
}

// ReadResponseFrameTCP reads one length-prefixed response frame from the
// TCP command channel.
func (s *Stream) ReadResponseFrameTCP() (*protocol.ResponseFrame, error) {
	total, err := s.ReadUint32BE()
	if err != nil {
		return nil, err
	}
	if total > MaxFrameLength {
		return nil, fmt.Errorf("%w: response total length %d exceeds maximum %d", protocol.ErrProtocolViolation, total, MaxFrameLength)
	}
	body, err := s.ReadExact(int(total))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeResponseBody(body)
}

// DecodeUDPDatagram parses one UDP data-channel datagram, which carries a
// response body with no total-length prefix (one datagram is one
// response).
func DecodeUDPDatagram(buf []byte) (*protocol.ResponseFrame, error) {
	return protocol.DecodeResponseBody(buf)
}
