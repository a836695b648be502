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

package ticks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromTimeToTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 30, 45, 123400*100, time.UTC)
	tick := FromTime(now)
	require.Equal(t, now, tick.ToTime())
}

func TestLeapSecondFlags(t *testing.T) {
	tick := Now()
	require.False(t, tick.IsLeapSecond())

	leap := tick.WithLeapSecond()
	require.True(t, leap.IsLeapSecond())
	require.False(t, leap.IsNegativeLeapSecond())
	require.Equal(t, tick.Value(), leap.Value())

	negLeap := tick.WithNegativeLeapSecond()
	require.True(t, negLeap.IsLeapSecond())
	require.True(t, negLeap.IsNegativeLeapSecond())
	require.Equal(t, tick.Value(), negLeap.Value())
}

func TestUnixEpochOffset(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	require.Equal(t, UnixEpochOffset, FromTime(epoch))
}

func TestNowWithinOneSecond(t *testing.T) {
	tick := Now()
	require.Less(t, tick.Since(Now()), time.Second)
}
