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
	"github.com/google/uuid"
	"github.com/gridprotectionalliance/go-sttp/measurement"
)

// MetadataPort hands a publisher's decompressed metadata blob to the host
// application unparsed (the session only ever decompresses it; schema
// interpretation is a collaborator's job, per §4.9 of the specification)
// and maintains the per-signal adjustment registry measurements are
// corrected against as they arrive.
type MetadataPort struct {
	adjustments *measurement.AdjustmentRegistry
}

// NewMetadataPort returns an empty MetadataPort.
func NewMetadataPort() *MetadataPort {
	return &MetadataPort{adjustments: measurement.NewAdjustmentRegistry()}
}

// Adjustments returns the registry session decode paths consult to apply
// adder/multiplier correction to a measurement's raw value.
func (p *MetadataPort) Adjustments() *measurement.AdjustmentRegistry {
	return p.adjustments
}

// SetAdjustment registers the adder/multiplier pair a signal's metadata
// record carries. Callers parsing a GetPrimaryMetadataSchema-shaped blob
// call this once per signal as they walk the result set.
func (p *MetadataPort) SetAdjustment(signalID uuid.UUID, adder, multiplier float64) {
	p.adjustments.Set(signalID, measurement.Adjustment{Adder: adder, Multiplier: multiplier})
}
