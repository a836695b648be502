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
	"testing"

	"github.com/google/uuid"
	"github.com/gridprotectionalliance/go-sttp/cache"
	"github.com/gridprotectionalliance/go-sttp/protocol"
	"github.com/gridprotectionalliance/go-sttp/ticks"
	"github.com/stretchr/testify/require"
)

func newCacheWithOneSignal(signalID uuid.UUID) *cache.SignalIndexCache {
	c := cache.New()
	c.Add(0, signalID, "PPA:1", 1)
	return c
}

func TestCompactRoundTripFullFidelityTimestamp(t *testing.T) {
	signalID := uuid.New()
	c := newCacheWithOneSignal(signalID)
	opts := CompactOptions{IncludeTime: true}

	m := Measurement{
		SignalID:  signalID,
		Value:     123.456,
		Timestamp: ticks.Now(),
		Flags:     protocol.StateFlagsNormal,
	}

	buf := Encode(m, 0, opts)
	require.Len(t, buf, FixedLength+8)

	got, n, err := Decode(buf, c, opts)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, signalID, got.SignalID)
	require.InDelta(t, 123.456, got.Value, 1e-3)
	require.Equal(t, m.Timestamp, got.Timestamp)
}

func TestCompactRoundTripNoTimestamp(t *testing.T) {
	signalID := uuid.New()
	c := newCacheWithOneSignal(signalID)
	opts := CompactOptions{IncludeTime: false}

	m := Measurement{SignalID: signalID, Value: 42, Timestamp: ticks.Now()}
	buf := Encode(m, 0, opts)
	require.Len(t, buf, FixedLength)

	got, n, err := Decode(buf, c, opts)
	require.NoError(t, err)
	require.Equal(t, FixedLength, n)
	require.Equal(t, ticks.Tick(0), got.Timestamp)
}

func TestCompactUsesBaseTimeOffsetTickResolution(t *testing.T) {
	signalID := uuid.New()
	c := newCacheWithOneSignal(signalID)
	base := ticks.Now()
	opts := CompactOptions{
		IncludeTime:     true,
		BaseTimeOffsets: [2]ticks.Tick{base, 0},
	}

	m := Measurement{SignalID: signalID, Value: 1, Timestamp: base + 500}
	buf := Encode(m, 0, opts)
	require.Len(t, buf, FixedLength+4)
	require.NotZero(t, buf[0]&byte(protocol.CompactBaseTimeOffset))

	got, _, err := Decode(buf, c, opts)
	require.NoError(t, err)
	require.Equal(t, m.Timestamp, got.Timestamp)
}

func TestCompactUsesBaseTimeOffsetMillisecondResolution(t *testing.T) {
	signalID := uuid.New()
	c := newCacheWithOneSignal(signalID)
	base := ticks.Now()
	opts := CompactOptions{
		IncludeTime:              true,
		UseMillisecondResolution: true,
		BaseTimeOffsets:          [2]ticks.Tick{base, 0},
	}

	m := Measurement{SignalID: signalID, Value: 1, Timestamp: base + 250*ticks.PerMillisecond}
	buf := Encode(m, 0, opts)
	require.Len(t, buf, FixedLength+2)

	got, _, err := Decode(buf, c, opts)
	require.NoError(t, err)
	require.Equal(t, m.Timestamp, got.Timestamp)
}

func TestCompactFallsBackToFullFidelityWhenOffsetTooFarInPast(t *testing.T) {
	signalID := uuid.New()
	c := newCacheWithOneSignal(signalID)
	base := ticks.Now()
	opts := CompactOptions{
		IncludeTime:     true,
		BaseTimeOffsets: [2]ticks.Tick{base, 0},
	}

	// Timestamp before the base offset: difference <= 0, must not use the
	// shortened encoding.
	m := Measurement{SignalID: signalID, Value: 1, Timestamp: base - 1000}
	buf := Encode(m, 0, opts)
	require.Len(t, buf, FixedLength+8)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	c := cache.New()
	_, _, err := Decode([]byte{0x00, 0x00}, c, CompactOptions{})
	require.Error(t, err)
}

func TestAdjustmentRegistryDefaultsToIdentity(t *testing.T) {
	r := NewAdjustmentRegistry()
	signalID := uuid.New()
	m := Measurement{SignalID: signalID, Value: 10}
	require.Equal(t, 10.0, r.Adjust(m))

	r.Set(signalID, Adjustment{Multiplier: 2, Adder: 5})
	require.Equal(t, 25.0, r.Adjust(m))
}
