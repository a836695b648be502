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

// Package ticks implements STTP tick arithmetic. A Tick counts 100ns
// intervals since 0001-01-01 00:00:00 UTC. Bit 63 flags a leap second
// (second 60); bit 62 gives its direction (0 add, 1 delete); bits 0-61
// hold the timestamp value.
package ticks

import "time"

// Tick is a count of 100-nanosecond intervals since 0001-01-01 UTC, with
// the top two bits reserved for leap second signaling.
type Tick uint64

// PerSecond is the number of Ticks in one second.
const PerSecond Tick = 10_000_000

// PerMillisecond is the number of Ticks in one millisecond.
const PerMillisecond Tick = PerSecond / 1000

// PerMicrosecond is the number of Ticks in one microsecond.
const PerMicrosecond Tick = PerSecond / 1_000_000

// PerMinute is the number of Ticks in one minute.
const PerMinute Tick = 60 * PerSecond

// PerHour is the number of Ticks in one hour.
const PerHour Tick = 60 * PerMinute

// PerDay is the number of Ticks in one day.
const PerDay Tick = 24 * PerHour

// LeapSecondFlag marks a Tick value as representing a leap second (second 60).
const LeapSecondFlag Tick = 1 << 63

// LeapSecondDirection, when set alongside LeapSecondFlag, indicates the
// leap second is negative (second 59 is skipped) rather than positive.
const LeapSecondDirection Tick = 1 << 62

// ValueMask isolates the 62-bit timestamp value, excluding leap second bits.
const ValueMask Tick = ^(LeapSecondFlag | LeapSecondDirection)

// UnixEpochOffset is the Tick representation of 1970-01-01 00:00:00 UTC.
const UnixEpochOffset Tick = 621_355_968_000_000_000

// Value returns the 62-bit timestamp portion of t, excluding leap second bits.
func (t Tick) Value() Tick {
	return t & ValueMask
}

// IsLeapSecond reports whether t is flagged as a leap second.
func (t Tick) IsLeapSecond() bool {
	return t&LeapSecondFlag != 0
}

// IsNegativeLeapSecond reports whether t is flagged as a negative leap second.
func (t Tick) IsNegativeLeapSecond() bool {
	return t.IsLeapSecond() && t&LeapSecondDirection != 0
}

// WithLeapSecond returns t flagged as a (positive) leap second.
func (t Tick) WithLeapSecond() Tick {
	return t | LeapSecondFlag
}

// WithNegativeLeapSecond returns t flagged as a negative leap second.
func (t Tick) WithNegativeLeapSecond() Tick {
	return t | LeapSecondFlag | LeapSecondDirection
}

// FromTime converts a standard time.Time to a Tick value, in UTC.
func FromTime(t time.Time) Tick {
	secs := t.Unix()
	nsecs := int64(t.Nanosecond())
	return Tick(secs)*PerSecond + Tick(nsecs/100) + UnixEpochOffset
}

// ToTime converts a Tick value (its 62-bit value portion) to a standard
// time.Time in UTC. Leap second bits are ignored; callers that care about
// leap seconds should check IsLeapSecond/IsNegativeLeapSecond directly.
func (t Tick) ToTime() time.Time {
	v := int64(t.Value()) - int64(UnixEpochOffset)
	secs := v / int64(PerSecond)
	rem := v % int64(PerSecond)
	if rem < 0 {
		rem += int64(PerSecond)
		secs--
	}
	return time.Unix(secs, rem*100).UTC()
}

// Now returns the current UTC time as a Tick value.
func Now() Tick {
	return FromTime(time.Now().UTC())
}

// Since returns the duration between t and now, useful for staleness checks
// such as the seed scenario's "first packet's timestamps satisfy |ticks -
// now()| < 1 s".
func (t Tick) Since(now Tick) time.Duration {
	diff := int64(t.Value()) - int64(now.Value())
	if diff < 0 {
		diff = -diff
	}
	return time.Duration(diff) * 100 * time.Nanosecond
}
