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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridprotectionalliance/go-sttp/protocol"
)

func TestBuildConnectionStringIncludesRequiredKeys(t *testing.T) {
	info := DefaultSubscriptionInfo()
	info.FilterExpression = "FILTER ActiveMeasurements WHERE SignalType = 'FREQ'"

	cs := info.BuildConnectionString()

	require.Contains(t, cs, "throttled=false;")
	require.Contains(t, cs, "includeTime=true;")
	require.Contains(t, cs, "processingInterval=-1;")
	require.Contains(t, cs, "useMillisecondResolution=false;")
	require.Contains(t, cs, "requestNaNValueFilter=false;")
	require.Contains(t, cs, "assemblyInfo={source=go-sttp;version=0.1.0;updatedOn=};")
	require.Contains(t, cs, "filterExpression={FILTER ActiveMeasurements WHERE SignalType = 'FREQ'};")
}

func TestBuildConnectionStringOmitsOptionalGroupsWhenUnset(t *testing.T) {
	info := DefaultSubscriptionInfo()
	cs := info.BuildConnectionString()

	require.NotContains(t, cs, "dataChannel=")
	require.NotContains(t, cs, "startTimeConstraint=")
	require.NotContains(t, cs, "stopTimeConstraint=")
	require.NotContains(t, cs, "timeConstraintParameters=")
}

func TestBuildConnectionStringIncludesDataChannelWhenUDPPortSet(t *testing.T) {
	info := DefaultSubscriptionInfo()
	info.UDPPort = 9500
	cs := info.BuildConnectionString()

	require.Contains(t, cs, "dataChannel={localport=9500};")
}

func TestBuildConnectionStringSortsExtrasDeterministically(t *testing.T) {
	info := DefaultSubscriptionInfo()
	info.Extras = map[string]string{"zeta": "1", "alpha": "2"}

	cs := info.BuildConnectionString()
	alphaPos := indexOf(cs, "alpha=2;")
	zetaPos := indexOf(cs, "zeta=1;")
	require.True(t, alphaPos >= 0 && zetaPos >= 0)
	require.Less(t, alphaPos, zetaPos)
}

func TestBuildSubscribePayloadFraming(t *testing.T) {
	info := DefaultSubscriptionInfo()
	info.FilterExpression = "FILTER ActiveMeasurements WHERE True"

	payload := info.BuildSubscribePayload()
	require.Equal(t, byte(protocol.DataPacketCompact), payload[0])

	length := binary.BigEndian.Uint32(payload[1:5])
	require.Equal(t, int(length), len(payload)-5)
	require.Equal(t, info.BuildConnectionString(), string(payload[5:]))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
