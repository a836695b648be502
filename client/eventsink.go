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
	"sync"

	"github.com/gridprotectionalliance/go-sttp/measurement"
)

// EventSink is the set of callbacks a subscriber's host application
// supplies to receive everything the session observes: status lines,
// errors, metadata, cache/base-time updates, measurements, buffer blocks,
// notifications, and connection lifecycle transitions (§9 of the
// specification). Every method has a default no-op implementation, so a
// caller only needs to set the callbacks it cares about.
type EventSink struct {
	OnStatus                 func(message string)
	OnError                  func(err error)
	OnMetadata               func(blob []byte)
	OnSignalIndexCache       func(subscriberID string, count int)
	OnDataStartTime          func(startTime int64)
	OnConfigurationChanged   func()
	OnMeasurements           func(measurements []measurement.Measurement)
	OnBufferBlock            func(buffer []byte)
	OnNotification           func(message string)
	OnHistoricalReadComplete func()
	OnConnectionEstablished  func()
	OnConnectionTerminated   func(err error)
}

// eventSinkHolder guards an EventSink behind a mutex so a host application
// can rebind callbacks (e.g. attach a UI handler after Connect has already
// started) from a different goroutine than the one delivering events.
type eventSinkHolder struct {
	mu   sync.RWMutex
	sink EventSink
}

func newEventSinkHolder(sink EventSink) *eventSinkHolder {
	return &eventSinkHolder{sink: sink}
}

// Rebind replaces the active EventSink.
func (h *eventSinkHolder) Rebind(sink EventSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

func (h *eventSinkHolder) get() EventSink {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sink
}

func (h *eventSinkHolder) status(message string) {
	if f := h.get().OnStatus; f != nil {
		f(message)
	}
}

func (h *eventSinkHolder) error(err error) {
	if f := h.get().OnError; f != nil {
		f(err)
	}
}

func (h *eventSinkHolder) metadata(blob []byte) {
	if f := h.get().OnMetadata; f != nil {
		f(blob)
	}
}

func (h *eventSinkHolder) signalIndexCache(subscriberID string, count int) {
	if f := h.get().OnSignalIndexCache; f != nil {
		f(subscriberID, count)
	}
}

func (h *eventSinkHolder) dataStartTime(startTime int64) {
	if f := h.get().OnDataStartTime; f != nil {
		f(startTime)
	}
}

func (h *eventSinkHolder) configurationChanged() {
	if f := h.get().OnConfigurationChanged; f != nil {
		f()
	}
}

func (h *eventSinkHolder) measurements(m []measurement.Measurement) {
	if f := h.get().OnMeasurements; f != nil {
		f(m)
	}
}

func (h *eventSinkHolder) bufferBlock(buf []byte) {
	if f := h.get().OnBufferBlock; f != nil {
		f(buf)
	}
}

func (h *eventSinkHolder) notification(message string) {
	if f := h.get().OnNotification; f != nil {
		f(message)
	}
}

func (h *eventSinkHolder) historicalReadComplete() {
	if f := h.get().OnHistoricalReadComplete; f != nil {
		f()
	}
}

func (h *eventSinkHolder) connectionEstablished() {
	if f := h.get().OnConnectionEstablished; f != nil {
		f()
	}
}

func (h *eventSinkHolder) connectionTerminated(err error) {
	if f := h.get().OnConnectionTerminated; f != nil {
		f(err)
	}
}
