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

// Package cache implements the STTP signal-index cache: the bidirectional
// mapping between a publisher-assigned 32-bit runtime index and a 128-bit
// signal ID, plus its wire decoding.
package cache

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/gridprotectionalliance/go-sttp/protocol"
)

// Record is the information a publisher associates with one runtime index:
// the signal's globally unique ID, its human-readable measurement-key
// source, and its legacy numeric ID.
type Record struct {
	SignalID  uuid.UUID
	Source    string
	NumericID uint64
}

// SignalIndexCache maps 32-bit runtime indices to Records, with a reverse
// signal-ID-to-index index. A cache is built incrementally via Add or in
// one shot via Decode, then treated as immutable once the publisher
// declares it complete and the subscriber confirms it (see §4.6 of the
// specification for the two-slot generation handoff this enables).
type SignalIndexCache struct {
	byIndex  map[int32]Record
	byID     map[uuid.UUID]int32
	maxIndex int32
	hasMax   bool
}

// New returns an empty SignalIndexCache.
func New() *SignalIndexCache {
	return &SignalIndexCache{
		byIndex: make(map[int32]Record),
		byID:    make(map[uuid.UUID]int32),
	}
}

// LookupSignalID returns the signal ID for idx, or the zero UUID if idx is
// not present.
func (c *SignalIndexCache) LookupSignalID(idx int32) uuid.UUID {
	if rec, ok := c.byIndex[idx]; ok {
		return rec.SignalID
	}
	return uuid.UUID{}
}

// LookupIndex returns the runtime index for sigID, or -1 if not present.
func (c *SignalIndexCache) LookupIndex(sigID uuid.UUID) int32 {
	if idx, ok := c.byID[sigID]; ok {
		return idx
	}
	return -1
}

// Record returns the full record for idx and whether it was found.
func (c *SignalIndexCache) Record(idx int32) (Record, bool) {
	rec, ok := c.byIndex[idx]
	return rec, ok
}

// Add inserts or replaces the record for idx, updating both the forward
// and reverse maps and the tracked maximum index.
func (c *SignalIndexCache) Add(idx int32, sigID uuid.UUID, source string, numericID uint64) {
	c.byIndex[idx] = Record{SignalID: sigID, Source: source, NumericID: numericID}
	c.byID[sigID] = idx
	if !c.hasMax || idx > c.maxIndex {
		c.maxIndex = idx
		c.hasMax = true
	}
}

// Count returns the number of records in the cache.
func (c *SignalIndexCache) Count() int {
	return len(c.byIndex)
}

// MaxIndex returns the largest runtime index added so far, or -1 if the
// cache is empty.
func (c *SignalIndexCache) MaxIndex() int32 {
	if !c.hasMax {
		return -1
	}
	return c.maxIndex
}

// Decode parses an UPDATESIGNALINDEXCACHE response payload into c,
// returning the subscriber ID carried in the message. Per the
// specification's Open Questions, the trailing unauthorized-signal-IDs
// tail is skipped by honoring binaryLength rather than parsed, since the
// reference decoder never consumes it either.
func (c *SignalIndexCache) Decode(buf []byte) (uuid.UUID, error) {
	const minHeader = 4 + 16 + 4
	if len(buf) < minHeader {
		return uuid.UUID{}, fmt.Errorf("%w: signal index cache payload needs at least %d bytes, got %d", protocol.ErrProtocolViolation, minHeader, len(buf))
	}

	binaryLength := binary.BigEndian.Uint32(buf)
	if int(binaryLength) > len(buf) {
		return uuid.UUID{}, fmt.Errorf("%w: signal index cache declares length %d but only %d bytes available", protocol.ErrProtocolViolation, binaryLength, len(buf))
	}
	offset := 4

	subscriberID, err := uuid.FromBytes(buf[offset : offset+16])
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: parsing subscriber id: %v", protocol.ErrProtocolViolation, err)
	}
	offset += 16

	if offset+4 > len(buf) {
		return uuid.UUID{}, fmt.Errorf("%w: truncated before reference count", protocol.ErrProtocolViolation)
	}
	referenceCount := binary.BigEndian.Uint32(buf[offset:])
	offset += 4

	for i := uint32(0); i < referenceCount; i++ {
		if offset+4+16+4 > len(buf) {
			return uuid.UUID{}, fmt.Errorf("%w: truncated signal index cache record %d", protocol.ErrProtocolViolation, i)
		}
		signalIndex := int32(binary.BigEndian.Uint32(buf[offset:]))
		offset += 4

		signalID, err := uuid.FromBytes(buf[offset : offset+16])
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("%w: parsing signal id for record %d: %v", protocol.ErrProtocolViolation, i, err)
		}
		offset += 16

		sourceLen := binary.BigEndian.Uint32(buf[offset:])
		offset += 4

		if offset+int(sourceLen)+8 > len(buf) {
			return uuid.UUID{}, fmt.Errorf("%w: truncated source/numeric id for record %d", protocol.ErrProtocolViolation, i)
		}
		source := string(buf[offset : offset+int(sourceLen)])
		offset += int(sourceLen)

		numericID := binary.BigEndian.Uint64(buf[offset:])
		offset += 8

		c.Add(signalIndex, signalID, source, numericID)
	}

	// The unauthorized-signal-IDs tail (a uint32 count followed by that
	// many UUIDs) is intentionally not parsed; binaryLength already told
	// the framing layer how many bytes this message occupied.
	return subscriberID, nil
}
