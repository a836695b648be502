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
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/gridprotectionalliance/go-sttp/protocol"
)

// AssemblyInfo identifies the subscriber application in the connection
// string's assemblyInfo= group, surfaced to the publisher for logging.
type AssemblyInfo struct {
	Source    string `yaml:"source"`
	Version   string `yaml:"version"`
	UpdatedOn string `yaml:"updated_on"`
}

// SubscriptionInfo is the value object describing what a subscriber wants
// from the publisher: which signals (via FilterExpression), how often, in
// what resolution, and over which transport.
type SubscriptionInfo struct {
	FilterExpression         string            `yaml:"filter_expression"`
	Throttled                bool              `yaml:"throttled"`
	PublishInterval          float64           `yaml:"publish_interval"`
	UDPPort                  int               `yaml:"udp_port"`
	IncludeTime              bool              `yaml:"include_time"`
	UseMillisecondResolution bool              `yaml:"use_millisecond_resolution"`
	RequestNaNValueFilter    bool              `yaml:"request_nan_value_filter"`
	ProcessingInterval       int               `yaml:"processing_interval"`
	StartTimeConstraint      string            `yaml:"start_time_constraint"`
	StopTimeConstraint       string            `yaml:"stop_time_constraint"`
	TimeConstraintParameters string            `yaml:"time_constraint_parameters"`
	Assembly                 AssemblyInfo      `yaml:"assembly"`
	Extras                   map[string]string `yaml:"extras"`
}

// DefaultSubscriptionInfo returns a SubscriptionInfo with tick-resolution,
// TCP-only, unthrottled framing.
func DefaultSubscriptionInfo() SubscriptionInfo {
	return SubscriptionInfo{
		IncludeTime:        true,
		ProcessingInterval: -1,
		Assembly: AssemblyInfo{
			Source:  "go-sttp",
			Version: "0.1.0",
		},
	}
}

// BuildConnectionString assembles the UTF-8 key/value connection string
// carried in the SUBSCRIBE payload (§4.7/§6 of the specification). Key
// order is not meaningful on the wire; it is kept stable here only so
// logs and tests are deterministic.
func (s SubscriptionInfo) BuildConnectionString() string {
	var b strings.Builder

	fmt.Fprintf(&b, "throttled=%t;", s.Throttled)
	if s.PublishInterval > 0 {
		fmt.Fprintf(&b, "publishInterval=%g;", s.PublishInterval)
	}
	fmt.Fprintf(&b, "includeTime=%t;", s.IncludeTime)
	fmt.Fprintf(&b, "processingInterval=%d;", s.ProcessingInterval)
	fmt.Fprintf(&b, "useMillisecondResolution=%t;", s.UseMillisecondResolution)
	fmt.Fprintf(&b, "requestNaNValueFilter=%t;", s.RequestNaNValueFilter)
	fmt.Fprintf(&b, "assemblyInfo={source=%s;version=%s;updatedOn=%s};", s.Assembly.Source, s.Assembly.Version, s.Assembly.UpdatedOn)
	fmt.Fprintf(&b, "filterExpression={%s};", s.FilterExpression)

	if s.UDPPort > 0 {
		fmt.Fprintf(&b, "dataChannel={localport=%d};", s.UDPPort)
	}
	if s.StartTimeConstraint != "" {
		fmt.Fprintf(&b, "startTimeConstraint=%s;", s.StartTimeConstraint)
	}
	if s.StopTimeConstraint != "" {
		fmt.Fprintf(&b, "stopTimeConstraint=%s;", s.StopTimeConstraint)
	}
	if s.TimeConstraintParameters != "" {
		fmt.Fprintf(&b, "timeConstraintParameters=%s;", s.TimeConstraintParameters)
	}

	extraKeys := make([]string, 0, len(s.Extras))
	for k := range s.Extras {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		fmt.Fprintf(&b, "%s=%s;", k, s.Extras[k])
	}

	return b.String()
}

// BuildSubscribePayload assembles the full SUBSCRIBE command payload: the
// DataPacketFlags byte (always compact on the wire; TSSC is negotiated
// separately via operational modes), the 4-byte big-endian connection
// string length, then the UTF-8 connection string itself.
func (s SubscriptionInfo) BuildSubscribePayload() []byte {
	cs := s.BuildConnectionString()
	buf := make([]byte, 1+4+len(cs))
	buf[0] = byte(protocol.DataPacketCompact)
	binary.BigEndian.PutUint32(buf[1:], uint32(len(cs)))
	copy(buf[5:], cs)
	return buf
}
