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

// Package measurement implements STTP's compact measurement codec (C4): a
// basic measured value plus the 9-byte fixed prefix and variable-length
// time suffix used to move it over the wire.
package measurement

import (
	"math"

	"github.com/google/uuid"
	"github.com/gridprotectionalliance/go-sttp/protocol"
	"github.com/gridprotectionalliance/go-sttp/ticks"
)

// Measurement is a single measured value: a signal identity, its
// instantaneous value, the tick-resolution time it was taken, and the
// quality flags reported by the device that took it.
type Measurement struct {
	SignalID  uuid.UUID
	Value     float64
	Timestamp ticks.Tick
	Flags     protocol.StateFlags
}

// TimestampValue returns the 62-bit timestamp value, excluding any leap
// second flags.
func (m Measurement) TimestampValue() ticks.Tick {
	return m.Timestamp.Value()
}

// AdjustedValue returns m.Value corrected by the linear adder/multiplier
// pair a measurement's metadata carries, i.e. value*multiplier + adder.
func (m Measurement) AdjustedValue(a Adjustment) float64 {
	return m.Value*a.Multiplier + a.Adder
}

// Adjustment is the linear value-correction pair STTP metadata attaches to
// a signal: raw wire values are scaled by Multiplier and shifted by Adder
// before being reported to subscribers.
type Adjustment struct {
	Multiplier float64
	Adder      float64
}

// IdentityAdjustment leaves a measurement's value unchanged.
var IdentityAdjustment = Adjustment{Multiplier: 1.0, Adder: 0.0}

// AdjustmentRegistry tracks the per-signal Adjustment published in a data
// set's measurement metadata, keyed by signal ID. A zero-value registry
// behaves as if every signal carries IdentityAdjustment.
type AdjustmentRegistry struct {
	bySignalID map[uuid.UUID]Adjustment
}

// NewAdjustmentRegistry returns an empty registry.
func NewAdjustmentRegistry() *AdjustmentRegistry {
	return &AdjustmentRegistry{bySignalID: make(map[uuid.UUID]Adjustment)}
}

// Set records the adjustment to apply to signalID's raw values.
func (r *AdjustmentRegistry) Set(signalID uuid.UUID, a Adjustment) {
	r.bySignalID[signalID] = a
}

// Lookup returns the adjustment for signalID, or IdentityAdjustment if none
// has been recorded.
func (r *AdjustmentRegistry) Lookup(signalID uuid.UUID) Adjustment {
	if a, ok := r.bySignalID[signalID]; ok {
		return a
	}
	return IdentityAdjustment
}

// Adjust returns m.Value corrected by whatever adjustment the registry has
// recorded for m.SignalID.
func (r *AdjustmentRegistry) Adjust(m Measurement) float64 {
	return m.AdjustedValue(r.Lookup(m.SignalID))
}

func float32FromFloat64(v float64) float32 {
	return float32(v)
}

func float64FromFloat32Bits(bits uint32) float64 {
	return float64(math.Float32frombits(bits))
}
