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

package endian

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUint64MaxTakesNineBytes(t *testing.T) {
	buf := WriteUint64(nil, math.MaxUint64)
	require.Len(t, buf, 9)

	value, n := ReadUint64(buf)
	require.Equal(t, 9, n)
	require.Equal(t, uint64(math.MaxUint64), value)
}

func TestUint32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 0x1fffff, 0x200000, 0xfffffff, 0x10000000, math.MaxUint32}
	for _, v := range values {
		buf := WriteUint32(nil, v)
		got, n := ReadUint32(buf)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestUint16RoundTrip(t *testing.T) {
	values := []uint16{0, 1, 0x7f, 0x80, math.MaxUint16}
	for _, v := range values {
		buf := WriteUint16(nil, v)
		got, n := ReadUint16(buf)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestUint64RoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 0x7f, 0x80,
		0x3fff, 0x4000,
		0x1fffff, 0x200000,
		0xfffffff, 0x10000000,
		0x7ffffffff, 0x800000000,
		0x3ffffffffff, 0x40000000000,
		0x1ffffffffffff, 0x2000000000000,
		0xffffffffffffff, 0x100000000000000,
		math.MaxUint64,
	}
	for _, v := range values {
		buf := WriteUint64(nil, v)
		got, n := ReadUint64(buf)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestSignedReinterpretsBitPattern(t *testing.T) {
	buf := WriteInt64(nil, -1)
	got, _ := ReadInt64(buf)
	require.Equal(t, int64(-1), got)
	require.Equal(t, uint64(math.MaxUint64), uint64(got))
}
