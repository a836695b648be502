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

package measurement

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gridprotectionalliance/go-sttp/cache"
	"github.com/gridprotectionalliance/go-sttp/protocol"
	"github.com/gridprotectionalliance/go-sttp/ticks"
)

// FixedLength is the always-present prefix of a compact measurement: one
// byte of compact state flags, a 4-byte runtime index, and a 4-byte
// float32 value.
const FixedLength = 9

// CompactOptions carries the per-subscription framing parameters a
// compact measurement needs to size and interpret its variable-length
// timestamp suffix: whether a timestamp is present at all, whether it is
// millisecond- or tick-resolution, and the two base-time offsets
// negotiated for the active and next generation of the signal index cache.
type CompactOptions struct {
	IncludeTime              bool
	UseMillisecondResolution bool
	BaseTimeOffsets          [2]ticks.Tick

	// TimeIndex selects which of the two BaseTimeOffsets slots Encode
	// measures against; Decode instead reads the slot from the TIMEINDEX
	// bit of the incoming compact flags byte.
	TimeIndex int
}

// EncodedLength returns the number of bytes Encode will produce for m under
// opts, and whether a base-time offset was close enough to use a shortened
// timestamp (the same computation EncodeInto performs, exposed so callers
// can presize buffers).
func EncodedLength(m Measurement, opts CompactOptions) (length int, timeIndex int, usingBaseTimeOffset bool) {
	length = FixedLength
	if !opts.IncludeTime {
		return length, 0, false
	}

	timeIndex = opts.TimeIndex
	baseTimeOffset := opts.BaseTimeOffsets[timeIndex]

	if baseTimeOffset > 0 {
		difference := int64(m.TimestampValue()) - int64(baseTimeOffset)
		if difference > 0 {
			if opts.UseMillisecondResolution {
				usingBaseTimeOffset = difference/int64(ticks.PerMillisecond) < math.MaxUint16
			} else {
				usingBaseTimeOffset = difference < math.MaxUint32
			}
		}
		if usingBaseTimeOffset {
			if opts.UseMillisecondResolution {
				length += 2
			} else {
				length += 4
			}
			return length, timeIndex, usingBaseTimeOffset
		}
	}

	length += 8
	return length, timeIndex, false
}

// Encode serializes m as a compact measurement using idx as its runtime
// index (looked up by the caller from the active SignalIndexCache).
func Encode(m Measurement, idx int32, opts CompactOptions) []byte {
	length, timeIndex, usingBaseTimeOffset := EncodedLength(m, opts)
	buf := make([]byte, length)

	compactFlags := protocol.CompactFromStateFlags(m.Flags)
	if timeIndex != 0 {
		compactFlags |= protocol.CompactTimeIndex
	}
	if usingBaseTimeOffset {
		compactFlags |= protocol.CompactBaseTimeOffset
	}
	buf[0] = byte(compactFlags)

	binary.BigEndian.PutUint32(buf[1:], uint32(idx))
	binary.BigEndian.PutUint32(buf[5:], math.Float32bits(float32FromFloat64(m.Value)))

	if !opts.IncludeTime {
		return buf
	}

	offset := FixedLength
	baseTimeOffset := opts.BaseTimeOffsets[timeIndex]

	if usingBaseTimeOffset {
		difference := uint64(m.TimestampValue()) - uint64(baseTimeOffset)
		if opts.UseMillisecondResolution {
			binary.BigEndian.PutUint16(buf[offset:], uint16(difference/uint64(ticks.PerMillisecond)))
		} else {
			binary.BigEndian.PutUint32(buf[offset:], uint32(difference))
		}
	} else {
		binary.BigEndian.PutUint64(buf[offset:], uint64(m.Timestamp))
	}

	return buf
}

// Decode parses a compact measurement from buf, resolving its runtime
// index against signalCache, and returns the measurement plus the number
// of bytes consumed.
func Decode(buf []byte, signalCache *cache.SignalIndexCache, opts CompactOptions) (Measurement, int, error) {
	if len(buf) < FixedLength {
		return Measurement{}, 0, fmt.Errorf("%w: compact measurement needs at least %d bytes, got %d", protocol.ErrProtocolViolation, FixedLength, len(buf))
	}

	compactFlags := protocol.CompactStateFlags(buf[0])
	index := 1

	runtimeIndex := int32(binary.BigEndian.Uint32(buf[index:]))
	index += 4

	value := float64FromFloat32Bits(binary.BigEndian.Uint32(buf[index:]))
	index += 4

	m := Measurement{
		SignalID: signalCache.LookupSignalID(runtimeIndex),
		Value:    value,
		Flags:    compactFlags.ToFullStateFlags(),
	}

	if !opts.IncludeTime {
		return m, index, nil
	}

	timeIndex := 0
	if compactFlags&protocol.CompactTimeIndex != 0 {
		timeIndex = 1
	}
	usingBaseTimeOffset := compactFlags&protocol.CompactBaseTimeOffset != 0

	if usingBaseTimeOffset {
		baseTimeOffset := opts.BaseTimeOffsets[timeIndex]

		if opts.UseMillisecondResolution {
			if index+2 > len(buf) {
				return Measurement{}, 0, fmt.Errorf("%w: truncated 2-byte compact timestamp", protocol.ErrProtocolViolation)
			}
			if baseTimeOffset > 0 {
				m.Timestamp = baseTimeOffset + ticks.Tick(binary.BigEndian.Uint16(buf[index:]))*ticks.PerMillisecond
			}
			index += 2
		} else {
			if index+4 > len(buf) {
				return Measurement{}, 0, fmt.Errorf("%w: truncated 4-byte compact timestamp", protocol.ErrProtocolViolation)
			}
			if baseTimeOffset > 0 {
				m.Timestamp = baseTimeOffset + ticks.Tick(binary.BigEndian.Uint32(buf[index:]))
			}
			index += 4
		}
	} else {
		if index+8 > len(buf) {
			return Measurement{}, 0, fmt.Errorf("%w: truncated 8-byte full-fidelity timestamp", protocol.ErrProtocolViolation)
		}
		m.Timestamp = ticks.Tick(binary.BigEndian.Uint64(buf[index:]))
		index += 8
	}

	return m, index, nil
}
