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

package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gridprotectionalliance/go-sttp/cache"
	"github.com/gridprotectionalliance/go-sttp/measurement"
	"github.com/gridprotectionalliance/go-sttp/protocol"
	"github.com/gridprotectionalliance/go-sttp/ticks"
	"github.com/gridprotectionalliance/go-sttp/transport"
	"github.com/gridprotectionalliance/go-sttp/tssc"
)

// SessionState is one state of the subscriber-side state machine in §4.6
// of the specification.
type SessionState int

// Session states, in the order a healthy connection passes through them.
const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateDisconnecting
)

// String renders a SessionState by name.
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateSubscribed:
		return "Subscribed"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// udpReader describes the optional UDP data channel; satisfied by
// *net.UDPConn in production and faked in tests.
type udpReader interface {
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	Close() error
}

// Session runs the command/response dispatch, cache/base-time generation
// handoff, and measurement decode for one TCP connection to a publisher.
// It is not safe for concurrent use by more than the single goroutine
// Run's errgroup spawns per reader; Send/Close are safe to call from
// other goroutines since writes go through the Stream's own buffering
// under sessionWriteMu.
type Session struct {
	stream *transport.Stream
	udp    udpReader

	sendMu sync.Mutex

	modes protocol.OperationalModes

	stateMu sync.RWMutex
	state   SessionState

	cacheSlots    [2]*cache.SignalIndexCache
	nextCacheSlot int

	baseTimeSlots    [2]ticks.Tick
	nextBaseTimeSlot int

	tsscDecoder    *tssc.Decoder
	tsscSeenBlocks bool

	metadata *MetadataPort
	events   *eventSinkHolder
	sub      SubscriptionInfo

	cfg *Config
}

// NewSession wraps stream (and optionally a bound UDP data-channel
// reader) in a Session ready to run.
func NewSession(cfg *Config, stream *transport.Stream, udp udpReader, metadata *MetadataPort, events *eventSinkHolder) *Session {
	return &Session{
		stream:   stream,
		udp:      udp,
		metadata: metadata,
		events:   events,
		sub:      cfg.Subscription,
		cfg:      cfg,
		state:    StateDisconnected,
	}
}

// State returns the session's current state.
func (s *Session) State() SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(next SessionState) {
	s.stateMu.Lock()
	prev := s.state
	s.state = next
	s.stateMu.Unlock()
	if prev != next {
		log.Debugf("sttp: session %s -> %s", prev, next)
	}
}

// Handshake sends DEFINEOPERATIONALMODES and, per configuration,
// immediately requests metadata and/or subscribes -- the Connect sequence
// of §4.8. It must be called once, before Run.
func (s *Session) Handshake(cfg *Config) error {
	s.setState(StateConnecting)

	s.modes = protocol.DefaultOperationalModes()
	if !cfg.CompressPayloadData {
		s.modes &^= protocol.OpModeCompressPayloadData
	}
	if !cfg.CompressMetadata {
		s.modes &^= protocol.OpModeCompressMetadata
	}
	if !cfg.CompressSignalIndexCache {
		s.modes &^= protocol.OpModeCompressSignalIndexCache
	}

	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(s.modes))
	if err := s.sendCommand(protocol.CommandDefineOperationalModes, payload); err != nil {
		return fmt.Errorf("client: sending DEFINEOPERATIONALMODES: %w", err)
	}

	s.setState(StateConnected)
	s.events.connectionEstablished()

	if cfg.AutoRequestMetadata {
		if err := s.sendCommand(protocol.CommandMetadataRefresh, nil); err != nil {
			return fmt.Errorf("client: sending METADATAREFRESH: %w", err)
		}
	}
	if cfg.AutoSubscribe {
		if err := s.Subscribe(cfg.Subscription); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe sends a SUBSCRIBE command built from info. The session moves
// to StateSubscribed once the publisher's SUCCEEDED response arrives.
func (s *Session) Subscribe(info SubscriptionInfo) error {
	s.sub = info
	return s.sendCommand(protocol.CommandSubscribe, info.BuildSubscribePayload())
}

// Unsubscribe sends UNSUBSCRIBE and returns the session to StateConnected.
func (s *Session) Unsubscribe() error {
	return s.sendCommand(protocol.CommandUnsubscribe, nil)
}

func (s *Session) sendCommand(cmd protocol.ServerCommand, payload []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.stream.WriteCommandFrame(&protocol.CommandFrame{Command: cmd, Payload: payload})
}

// Run reads response frames from the TCP stream (and, if present, the UDP
// data channel) until ctx is canceled or the connection drops, fanning
// both readers' dispatch through errgroup so either failing tears down
// the other.
func (s *Session) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			frame, err := s.stream.ReadResponseFrameTCP()
			if err != nil {
				return err
			}
			if err := s.dispatch(frame); err != nil {
				return err
			}
		}
	})

	if s.udp != nil {
		eg.Go(func() error {
			buf := make([]byte, 65536)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				n, _, err := s.udp.ReadFrom(buf)
				if err != nil {
					return err
				}
				frame, err := transport.DecodeUDPDatagram(buf[:n])
				if err != nil {
					s.events.error(err)
					continue
				}
				if err := s.dispatch(frame); err != nil {
					return err
				}
			}
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		s.stream.Close()
		if s.udp != nil {
			s.udp.Close()
		}
		return nil
	})

	err := eg.Wait()
	s.setState(StateDisconnected)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.events.connectionTerminated(err)
		return err
	}
	s.events.connectionTerminated(nil)
	return nil
}

func (s *Session) dispatch(f *protocol.ResponseFrame) error {
	switch f.Response {
	case protocol.ResponseSucceeded:
		s.handleSucceeded(f)
	case protocol.ResponseFailed:
		s.events.error(fmt.Errorf("sttp: %s failed: %s", f.InResponseTo, string(f.Payload)))
	case protocol.ResponseDataPacket:
		return s.handleDataPacket(f.Payload)
	case protocol.ResponseUpdateSignalIndexCache:
		return s.handleUpdateSignalIndexCache(f.Payload)
	case protocol.ResponseUpdateBaseTimes:
		return s.handleUpdateBaseTimes(f.Payload)
	case protocol.ResponseDataStartTime:
		if len(f.Payload) >= 8 {
			s.events.dataStartTime(int64(binary.BigEndian.Uint64(f.Payload)))
		}
	case protocol.ResponseProcessingComplete:
		s.events.notification(string(f.Payload))
	case protocol.ResponseBufferBlock:
		s.events.bufferBlock(f.Payload)
		if len(f.Payload) < 4 {
			return fmt.Errorf("%w: BUFFERBLOCK payload needs at least 4 bytes, got %d", protocol.ErrProtocolViolation, len(f.Payload))
		}
		return s.sendCommand(protocol.CommandConfirmBufferBlock, f.Payload[:4])
	case protocol.ResponseNotify:
		s.events.notification(string(f.Payload))
		return s.sendCommand(protocol.CommandConfirmNotification, f.Payload)
	case protocol.ResponseConfigurationChanged:
		s.events.configurationChanged()
	case protocol.ResponseNoOp:
		// keep-alive; nothing to do
	default:
		return fmt.Errorf("%w: unrecognized response code 0x%02X", protocol.ErrProtocolViolation, byte(f.Response))
	}
	return nil
}

func (s *Session) handleSucceeded(f *protocol.ResponseFrame) {
	switch f.InResponseTo {
	case protocol.CommandSubscribe:
		s.setState(StateSubscribed)
	case protocol.CommandUnsubscribe:
		s.setState(StateConnected)
	case protocol.CommandMetadataRefresh:
		blob, err := s.decompress(f.Payload, s.modes&protocol.OpModeCompressMetadata != 0)
		if err != nil {
			s.events.error(fmt.Errorf("client: decompressing metadata: %w", err))
			return
		}
		s.events.metadata(blob)
	}
	s.events.status(fmt.Sprintf("%s succeeded", f.InResponseTo))
}

func (s *Session) decompress(payload []byte, compressed bool) ([]byte, error) {
	if !compressed || len(payload) == 0 {
		return payload, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// handleUpdateSignalIndexCache decodes an UPDATESIGNALINDEXCACHE response
// into the inactive cache slot and confirms it, per the lock-free
// generation handoff described in §4.6: the publisher only begins
// referencing the new slot after CONFIRMUPDATESIGNALINDEXCACHE arrives.
func (s *Session) handleUpdateSignalIndexCache(payload []byte) error {
	raw, err := s.decompress(payload, s.modes&protocol.OpModeCompressSignalIndexCache != 0)
	if err != nil {
		return fmt.Errorf("client: decompressing signal index cache: %w", err)
	}

	c := cache.New()
	subscriberID, err := c.Decode(raw)
	if err != nil {
		return fmt.Errorf("client: decoding signal index cache: %w", err)
	}

	slot := s.nextCacheSlot
	s.cacheSlots[slot] = c
	s.nextCacheSlot = 1 - slot

	s.events.signalIndexCache(subscriberID.String(), c.Count())

	return s.sendCommand(protocol.CommandConfirmUpdateSignalIndexCache, nil)
}

// handleUpdateBaseTimes decodes an UPDATEBASETIMES response: a 4-byte
// big-endian slot selector followed by two 8-byte big-endian tick values
// (the current and next base-time offsets), and writes the advertised
// slot before confirming.
func (s *Session) handleUpdateBaseTimes(payload []byte) error {
	if len(payload) < 4+8+8 {
		return fmt.Errorf("%w: UPDATEBASETIMES payload needs at least 20 bytes, got %d", protocol.ErrProtocolViolation, len(payload))
	}
	slot := int(binary.BigEndian.Uint32(payload)) & 1
	s.baseTimeSlots[0] = ticks.Tick(binary.BigEndian.Uint64(payload[4:]))
	s.baseTimeSlots[1] = ticks.Tick(binary.BigEndian.Uint64(payload[12:]))
	s.nextBaseTimeSlot = 1 - slot

	return s.sendCommand(protocol.CommandConfirmUpdateBaseTimes, nil)
}

func (s *Session) handleDataPacket(payload []byte) error {
	if len(payload) < 1 {
		return fmt.Errorf("%w: empty data packet", protocol.ErrProtocolViolation)
	}
	flags := protocol.DataPacketFlags(payload[0])
	body := payload[1:]

	cacheSlot := 0
	if flags&protocol.DataPacketCacheIndex != 0 {
		cacheSlot = 1
	}
	signalCache := s.cacheSlots[cacheSlot]
	if signalCache == nil {
		return nil // no cache negotiated yet; drop silently, matches a slow-start race
	}

	if flags&protocol.DataPacketCompressed != 0 {
		return s.decodeTSSCBlock(body, signalCache)
	}
	return s.decodeCompactBlock(body, signalCache)
}

func (s *Session) decodeCompactBlock(body []byte, signalCache *cache.SignalIndexCache) error {
	if len(body) < 4 {
		return fmt.Errorf("%w: compact data block needs a 4-byte count prefix", protocol.ErrProtocolViolation)
	}
	count := binary.BigEndian.Uint32(body)
	offset := 4

	opts := measurement.CompactOptions{
		IncludeTime:              s.sub.IncludeTime,
		UseMillisecondResolution: s.sub.UseMillisecondResolution,
		BaseTimeOffsets:          s.baseTimeSlots,
	}

	out := make([]measurement.Measurement, 0, count)
	for i := uint32(0); i < count; i++ {
		if offset >= len(body) {
			return fmt.Errorf("%w: compact data block truncated at measurement %d of %d", protocol.ErrProtocolViolation, i, count)
		}
		m, n, err := measurement.Decode(body[offset:], signalCache, opts)
		if err != nil {
			return fmt.Errorf("decoding compact measurement %d: %w", i, err)
		}
		if m.SignalID == uuid.Nil {
			offset += n
			continue // ErrCacheMiss-equivalent: skip, do not disconnect
		}
		out = append(out, m)
		offset += n
	}

	s.events.measurements(out)
	return nil
}

func (s *Session) decodeTSSCBlock(body []byte, signalCache *cache.SignalIndexCache) error {
	if len(body) < 4 {
		return fmt.Errorf("%w: TSSC data block needs a 4-byte version/sequence prefix", protocol.ErrProtocolViolation)
	}
	sequence := binary.BigEndian.Uint16(body[2:4])

	if s.tsscDecoder == nil || !s.tsscSeenBlocks {
		maxIdx := signalCache.MaxIndex()
		if maxIdx < 0 {
			maxIdx = 0
		}
		s.tsscDecoder = tssc.NewDecoder(uint32(maxIdx) + 1)
		s.tsscSeenBlocks = true
	} else if sequence != s.tsscDecoder.SequenceNumber+1 {
		s.events.error(fmt.Errorf("%w: expected sequence %d, got %d", protocol.ErrTSSCDesync, s.tsscDecoder.SequenceNumber+1, sequence))
	}
	s.tsscDecoder.SequenceNumber = sequence
	s.tsscDecoder.SetBuffer(body[4:])

	var out []measurement.Measurement
	for {
		pointID, timestamp, stateFlags, value, ok, err := s.tsscDecoder.TryGetMeasurement()
		if err != nil {
			return fmt.Errorf("decoding TSSC measurement: %w", err)
		}
		if !ok {
			break
		}
		out = append(out, measurement.Measurement{
			SignalID:  signalCache.LookupSignalID(pointID),
			Value:     float64FromRawBits(value),
			Timestamp: ticks.Tick(timestamp),
			Flags:     protocol.StateFlags(stateFlags),
		})
	}

	s.events.measurements(out)
	return nil
}

func float64FromRawBits(v float32) float64 {
	return float64(v)
}
