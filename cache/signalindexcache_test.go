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

package cache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLookupRoundTrip(t *testing.T) {
	c := New()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, id := range ids {
		c.Add(int32(i*2), id, "PPA:1", uint64(i+1))
	}

	for i, id := range ids {
		idx := int32(i * 2)
		require.Equal(t, id, c.LookupSignalID(idx))
		require.Equal(t, idx, c.LookupIndex(c.LookupSignalID(idx)))
	}
}

func TestLookupMissReturnsSentinels(t *testing.T) {
	c := New()
	require.Equal(t, uuid.UUID{}, c.LookupSignalID(42))
	require.Equal(t, int32(-1), c.LookupIndex(uuid.New()))
	require.Equal(t, int32(-1), c.MaxIndex())
}

func TestAddTracksMaxIndex(t *testing.T) {
	c := New()
	c.Add(5, uuid.New(), "a", 1)
	require.Equal(t, int32(5), c.MaxIndex())
	c.Add(2, uuid.New(), "b", 2)
	require.Equal(t, int32(5), c.MaxIndex())
	c.Add(9, uuid.New(), "c", 3)
	require.Equal(t, int32(9), c.MaxIndex())
	require.Equal(t, 3, c.Count())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := New()
	subscriberID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	c.Add(0, ids[0], "PPA:1", 1)
	c.Add(1, ids[1], "PPA:2", 2)

	buf := Encode(c, subscriberID)

	got := New()
	gotSubscriberID, err := got.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, subscriberID, gotSubscriberID)
	require.Equal(t, 2, got.Count())
	require.Equal(t, ids[0], got.LookupSignalID(0))
	require.Equal(t, ids[1], got.LookupSignalID(1))

	rec, ok := got.Record(0)
	require.True(t, ok)
	require.Equal(t, "PPA:1", rec.Source)
	require.Equal(t, uint64(1), rec.NumericID)
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	c := New()
	_, err := c.Decode([]byte{0x00, 0x00, 0x00, 0x04})
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	c := New()
	subscriberID := uuid.New()
	buf := make([]byte, 0, 32)
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, subscriberID[:]...)
	buf = append(buf, 0, 0, 0, 1) // claims one record, but none follows
	_, err := c.Decode(buf)
	require.Error(t, err)
}

func TestDecodeHonorsBinaryLengthOverTail(t *testing.T) {
	c := New()
	subscriberID := uuid.New()
	signalID := uuid.New()

	buf := make([]byte, 0, 64)
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, subscriberID[:]...)
	buf = append(buf, 0, 0, 0, 1)
	buf = append(buf, 0, 0, 0, 7) // runtime index 7
	buf = append(buf, signalID[:]...)
	buf = append(buf, 0, 0, 0, 0) // zero-length source
	buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 9)

	header := len(buf)
	buf[0] = byte(header >> 24)
	buf[1] = byte(header >> 16)
	buf[2] = byte(header >> 8)
	buf[3] = byte(header)

	// Append a bogus unauthorized-signal-IDs tail that Decode must ignore
	// because binaryLength already ended the message before it.
	buf = append(buf, 0, 0, 0, 1)
	buf = append(buf, uuid.New().String()...)

	gotSubscriberID, err := c.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, subscriberID, gotSubscriberID)
	require.Equal(t, 1, c.Count())
	require.Equal(t, signalID, c.LookupSignalID(7))
}
