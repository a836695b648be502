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

// Package endian provides fixed-width and 7-bit variable-length integer
// codecs for the STTP wire formats. Fixed-width values use encoding/binary
// directly at call sites; this package supplies only the 7-bit form, which
// the standard library does not.
package endian

// Each byte of a 7-bit encoded value carries 7 payload bits in its low
// bits; the high bit (0x80) is set on every byte except the last. Values
// are encoded and decoded least-significant-byte first, independent of the
// machine's native byte order.

// WriteUint16 appends the 7-bit encoding of value to buf and returns the
// extended slice. At most 2 bytes are appended.
func WriteUint16(buf []byte, value uint16) []byte {
	if value < 0x80 {
		return append(buf, byte(value))
	}
	return append(buf, byte(value)|0x80, byte(value>>7))
}

// WriteInt16 appends the 7-bit encoding of the unsigned reinterpretation of
// value to buf.
func WriteInt16(buf []byte, value int16) []byte {
	return WriteUint16(buf, uint16(value))
}

// WriteUint32 appends the 7-bit encoding of value to buf. At most 5 bytes
// are appended.
func WriteUint32(buf []byte, value uint32) []byte {
	if value < 0x80 {
		return append(buf, byte(value))
	}
	buf = append(buf, byte(value)|0x80)
	value >>= 7
	if value < 0x80 {
		return append(buf, byte(value))
	}
	buf = append(buf, byte(value)|0x80)
	value >>= 7
	if value < 0x80 {
		return append(buf, byte(value))
	}
	buf = append(buf, byte(value)|0x80)
	value >>= 7
	if value < 0x80 {
		return append(buf, byte(value))
	}
	buf = append(buf, byte(value)|0x80)
	value >>= 7
	return append(buf, byte(value))
}

// WriteInt32 appends the 7-bit encoding of the unsigned reinterpretation of
// value to buf.
func WriteInt32(buf []byte, value int32) []byte {
	return WriteUint32(buf, uint32(value))
}

// WriteUint64 appends the 7-bit encoding of value to buf. At most 9 bytes
// are appended.
func WriteUint64(buf []byte, value uint64) []byte {
	for i := 0; i < 8; i++ {
		if value < 0x80 {
			return append(buf, byte(value))
		}
		buf = append(buf, byte(value)|0x80)
		value >>= 7
	}
	return append(buf, byte(value))
}

// WriteInt64 appends the 7-bit encoding of the unsigned reinterpretation of
// value to buf.
func WriteInt64(buf []byte, value int64) []byte {
	return WriteUint64(buf, uint64(value))
}

// ReadUint16 decodes a 7-bit encoded uint16 starting at buf[0], returning
// the value and the number of bytes consumed.
func ReadUint16(buf []byte) (uint16, int) {
	value := uint16(buf[0])
	if value < 0x80 {
		return value, 1
	}
	value ^= uint16(buf[1]) << 7
	return value ^ 0x80, 2
}

// ReadInt16 decodes a 7-bit encoded int16.
func ReadInt16(buf []byte) (int16, int) {
	v, n := ReadUint16(buf)
	return int16(v), n
}

// ReadUint32 decodes a 7-bit encoded uint32 starting at buf[0], returning
// the value and the number of bytes consumed.
func ReadUint32(buf []byte) (uint32, int) {
	value := uint32(buf[0])
	if value < 0x80 {
		return value, 1
	}

	value ^= uint32(buf[1]) << 7
	if value < 0x4000 {
		return value ^ 0x80, 2
	}

	value ^= uint32(buf[2]) << 14
	if value < 0x200000 {
		return value ^ 0x4080, 3
	}

	value ^= uint32(buf[3]) << 21
	if value < 0x10000000 {
		return value ^ 0x204080, 4
	}

	value ^= uint32(buf[4]) << 28
	return value ^ 0x10204080, 5
}

// ReadInt32 decodes a 7-bit encoded int32.
func ReadInt32(buf []byte) (int32, int) {
	v, n := ReadUint32(buf)
	return int32(v), n
}

// ReadUint64 decodes a 7-bit encoded uint64 starting at buf[0], returning
// the value and the number of bytes consumed.
func ReadUint64(buf []byte) (uint64, int) {
	value := uint64(buf[0])
	if value < 0x80 {
		return value, 1
	}

	value ^= uint64(buf[1]) << 7
	if value < 0x4000 {
		return value ^ 0x80, 2
	}

	value ^= uint64(buf[2]) << 14
	if value < 0x200000 {
		return value ^ 0x4080, 3
	}

	value ^= uint64(buf[3]) << 21
	if value < 0x10000000 {
		return value ^ 0x204080, 4
	}

	value ^= uint64(buf[4]) << 28
	if value < 0x800000000 {
		return value ^ 0x10204080, 5
	}

	value ^= uint64(buf[5]) << 35
	if value < 0x40000000000 {
		return value ^ 0x810204080, 6
	}

	value ^= uint64(buf[6]) << 42
	if value < 0x2000000000000 {
		return value ^ 0x40810204080, 7
	}

	value ^= uint64(buf[7]) << 49
	if value < 0x100000000000000 {
		return value ^ 0x2040810204080, 8
	}

	value ^= uint64(buf[8]) << 56
	return value ^ 0x102040810204080, 9
}

// ReadInt64 decodes a 7-bit encoded int64.
func ReadInt64(buf []byte) (int64, int) {
	v, n := ReadUint64(buf)
	return int64(v), n
}
