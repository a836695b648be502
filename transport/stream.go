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

// Package transport implements the buffered, length-prefixed framed
// stream the STTP command channel runs on, plus framing helpers shared by
// the TCP command channel and the optional UDP data channel.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gridprotectionalliance/go-sttp/protocol"
)

// BufferSize is the default read/write buffer size, matching the
// reference implementation's BinaryStream sizing.
const BufferSize = 1420

// Stream wraps a bidirectional byte transport with buffered reads and
// writes. It is not safe for concurrent writers; callers must serialize
// writes through a single goroutine or external lock.
type Stream struct {
	rw io.ReadWriteCloser
	r  *bufio.Reader
	w  *bufio.Writer
}

// NewStream wraps rw with BufferSize read/write buffers.
func NewStream(rw io.ReadWriteCloser) *Stream {
	return &Stream{
		rw: rw,
		r:  bufio.NewReaderSize(rw, BufferSize),
		w:  bufio.NewWriterSize(rw, BufferSize),
	}
}

// Close closes the underlying transport.
func (s *Stream) Close() error {
	return s.rw.Close()
}

// ReadExact reads exactly n bytes, never returning short. EOF before n
// bytes arrive is reported as ErrEndOfStream.
func (s *Stream) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, protocol.ErrEndOfStream
		}
		return nil, fmt.Errorf("reading %d bytes: %w", n, err)
	}
	return buf, nil
}

// ReadUint32BE reads a 4-byte big-endian unsigned integer.
func (s *Stream) ReadUint32BE() (uint32, error) {
	buf, err := s.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// ReadByte reads a single byte, satisfying io.ByteReader.
func (s *Stream) ReadByte() (byte, error) {
	b, err := s.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Write buffers b for later flush. Writes larger than the buffer's free
// space flush what is pending, then stream the remainder directly to the
// transport rather than growing the buffer.
func (s *Stream) Write(b []byte) (int, error) {
	if len(b) > s.w.Available() {
		if err := s.w.Flush(); err != nil {
			return 0, fmt.Errorf("flushing before large write: %w", err)
		}
		if len(b) > BufferSize {
			n, err := s.rw.Write(b)
			if err != nil {
				return n, fmt.Errorf("writing %d bytes directly: %w", len(b), err)
			}
			return n, nil
		}
	}
	n, err := s.w.Write(b)
	if err != nil {
		return n, fmt.Errorf("buffering %d bytes: %w", len(b), err)
	}
	return n, nil
}

// Flush pushes any buffered writes to the transport.
func (s *Stream) Flush() error {
	return s.w.Flush()
}
