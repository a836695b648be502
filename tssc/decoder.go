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

package tssc

import (
	"fmt"
	"math"

	"github.com/gridprotectionalliance/go-sttp/endian"
)

// Decoder reconstructs measurements from a TSSC-compressed buffer. A
// Decoder is stateful across buffers: delta bases (point ID, timestamp,
// state flags, value) and the adaptive code statistics persist from one
// SetBuffer call to the next, so a Decoder must be paired 1:1 with the
// Encoder that produced its input and fed buffers in the order they were
// produced.
type Decoder struct {
	data         []byte
	position     int
	lastPosition int

	prevTimestamp1 int64
	prevTimestamp2 int64

	prevTimeDelta1 int64
	prevTimeDelta2 int64
	prevTimeDelta3 int64
	prevTimeDelta4 int64

	lastPoint *pointMetadata
	points    []*pointMetadata

	bitStreamCount int32
	bitStreamCache int32

	// SequenceNumber is incremented by callers and compared against the
	// publisher's to detect dropped or reordered TSSC buffers.
	SequenceNumber uint16
}

// NewDecoder creates a Decoder sized for signal runtime indices up to
// maxSignalIndex.
func NewDecoder(maxSignalIndex uint32) *Decoder {
	d := &Decoder{
		prevTimeDelta1: math.MaxInt64,
		prevTimeDelta2: math.MaxInt64,
		prevTimeDelta3: math.MaxInt64,
		prevTimeDelta4: math.MaxInt64,
		points:         make([]*pointMetadata, maxSignalIndex),
	}
	d.lastPoint = newPointMetadata(nil, d.readBit, d.readBits5)
	return d
}

func (d *Decoder) bitstreamIsEmpty() bool {
	return d.bitStreamCount == 0
}

func (d *Decoder) clearBitstream() {
	d.bitStreamCount = 0
	d.bitStreamCache = 0
}

// SetBuffer assigns the working buffer for the next round of
// TryGetMeasurement calls.
func (d *Decoder) SetBuffer(data []byte) {
	d.data = data
	d.position = 0
	d.lastPosition = len(data)
}

// TryGetMeasurement decodes the next measurement from the current buffer.
// ok is false once the buffer is exhausted or an EndOfStream code is read;
// err is non-nil only on a malformed stream.
func (d *Decoder) TryGetMeasurement() (pointID int32, timestamp int64, stateFlags uint32, value float32, ok bool, err error) {
	if d.position == d.lastPosition || d.bitstreamIsEmpty() {
		d.clearBitstream()
		return 0, 0, 0, 0, false, nil
	}

	code, err := d.lastPoint.ReadCode()
	if err != nil {
		return 0, 0, 0, 0, false, err
	}

	if code == EndOfStream {
		d.clearBitstream()
		return 0, 0, 0, 0, false, nil
	}

	if code > PointIDXor32 {
		return 0, 0, 0, 0, false, fmt.Errorf("tssc: invalid code %d received at position %d (last position %d)", code, d.position, d.lastPosition)
	}

	if err := d.decodePointID(code); err != nil {
		return 0, 0, 0, 0, false, err
	}

	code, err = d.lastPoint.ReadCode()
	if err != nil {
		return 0, 0, 0, 0, false, err
	}
	if code < TimeDelta1Forward {
		return 0, 0, 0, 0, false, fmt.Errorf("tssc: expecting code >= %d at position %d (last position %d)", TimeDelta1Forward, d.position, d.lastPosition)
	}

	pointID = d.lastPoint.PrevNextPointID1

	pointCount := int32(len(d.points))
	var nextPoint *pointMetadata
	if pointID < pointCount {
		nextPoint = d.points[pointID]
	}
	if nextPoint == nil {
		nextPoint = newPointMetadata(nil, d.readBit, d.readBits5)
		for int32(len(d.points)) <= pointID {
			d.points = append(d.points, nil)
		}
	}
	d.points[pointID] = nextPoint
	nextPoint.PrevNextPointID1 = pointID + 1

	if code < TimeXor7Bit {
		timestamp = d.decodeTimestamp(code)

		code, err = d.lastPoint.ReadCode()
		if err != nil {
			return 0, 0, 0, 0, false, err
		}
		if code < StateFlags2 {
			return 0, 0, 0, 0, false, fmt.Errorf("tssc: expecting code >= %d at position %d (last position %d)", StateFlags2, d.position, d.lastPosition)
		}
	} else {
		timestamp = d.prevTimestamp1
	}

	if code <= StateFlags7Bit32 {
		stateFlags = d.decodeStateFlags(code, nextPoint)

		code, err = d.lastPoint.ReadCode()
		if err != nil {
			return 0, 0, 0, 0, false, err
		}
		if code < Value1 {
			return 0, 0, 0, 0, false, fmt.Errorf("tssc: expecting code >= %d at position %d (last position %d)", Value1, d.position, d.lastPosition)
		}
	} else {
		stateFlags = d.lastPoint.PrevStateFlags1
	}

	var valueRaw uint32

	switch code {
	case Value1:
		valueRaw = nextPoint.PrevValue1
	case Value2:
		valueRaw = nextPoint.PrevValue2
		nextPoint.PrevValue2 = nextPoint.PrevValue1
		nextPoint.PrevValue1 = valueRaw
	case Value3:
		valueRaw = nextPoint.PrevValue3
		nextPoint.PrevValue3 = nextPoint.PrevValue2
		nextPoint.PrevValue2 = nextPoint.PrevValue1
		nextPoint.PrevValue1 = valueRaw
	case ValueZero:
		valueRaw = 0
		nextPoint.PrevValue3 = nextPoint.PrevValue2
		nextPoint.PrevValue2 = nextPoint.PrevValue1
		nextPoint.PrevValue1 = valueRaw
	default:
		switch code {
		case ValueXor4:
			valueRaw = uint32(d.readBits4()) ^ nextPoint.PrevValue1
		case ValueXor8:
			valueRaw = uint32(d.data[d.position]) ^ nextPoint.PrevValue1
			d.position++
		case ValueXor12:
			valueRaw = uint32(d.readBits4()) ^ uint32(d.data[d.position])<<4 ^ nextPoint.PrevValue1
			d.position++
		case ValueXor16:
			valueRaw = uint32(d.data[d.position]) ^ uint32(d.data[d.position+1])<<8 ^ nextPoint.PrevValue1
			d.position += 2
		case ValueXor20:
			valueRaw = uint32(d.readBits4()) ^ uint32(d.data[d.position])<<4 ^ uint32(d.data[d.position+1])<<12 ^ nextPoint.PrevValue1
			d.position += 2
		case ValueXor24:
			valueRaw = uint32(d.data[d.position]) ^ uint32(d.data[d.position+1])<<8 ^ uint32(d.data[d.position+2])<<16 ^ nextPoint.PrevValue1
			d.position += 3
		case ValueXor28:
			valueRaw = uint32(d.readBits4()) ^ uint32(d.data[d.position])<<4 ^ uint32(d.data[d.position+1])<<12 ^ uint32(d.data[d.position+2])<<20 ^ nextPoint.PrevValue1
			d.position += 3
		case ValueXor32:
			valueRaw = uint32(d.data[d.position]) ^ uint32(d.data[d.position+1])<<8 ^ uint32(d.data[d.position+2])<<16 ^ uint32(d.data[d.position+3])<<24 ^ nextPoint.PrevValue1
			d.position += 4
		default:
			return 0, 0, 0, 0, false, fmt.Errorf("tssc: invalid code %d received at position %d (last position %d)", code, d.position, d.lastPosition)
		}

		nextPoint.PrevValue3 = nextPoint.PrevValue2
		nextPoint.PrevValue2 = nextPoint.PrevValue1
		nextPoint.PrevValue1 = valueRaw
	}

	value = math.Float32frombits(valueRaw)
	d.lastPoint = nextPoint

	return pointID, timestamp, stateFlags, value, true, nil
}

func (d *Decoder) decodePointID(code CodeWord) error {
	switch code {
	case PointIDXor4:
		d.lastPoint.PrevNextPointID1 = d.readBits4() ^ d.lastPoint.PrevNextPointID1
	case PointIDXor8:
		d.lastPoint.PrevNextPointID1 = int32(d.data[d.position]) ^ d.lastPoint.PrevNextPointID1
		d.position++
	case PointIDXor12:
		d.lastPoint.PrevNextPointID1 = d.readBits4() ^ int32(d.data[d.position])<<4 ^ d.lastPoint.PrevNextPointID1
		d.position++
	case PointIDXor16:
		d.lastPoint.PrevNextPointID1 = int32(d.data[d.position]) ^ int32(d.data[d.position+1])<<8 ^ d.lastPoint.PrevNextPointID1
		d.position += 2
	case PointIDXor20:
		d.lastPoint.PrevNextPointID1 = d.readBits4() ^ int32(d.data[d.position])<<4 ^ int32(d.data[d.position+1])<<12 ^ d.lastPoint.PrevNextPointID1
		d.position += 2
	case PointIDXor24:
		d.lastPoint.PrevNextPointID1 = int32(d.data[d.position]) ^ int32(d.data[d.position+1])<<8 ^ int32(d.data[d.position+2])<<16 ^ d.lastPoint.PrevNextPointID1
		d.position += 3
	case PointIDXor32:
		d.lastPoint.PrevNextPointID1 = int32(d.data[d.position]) ^ int32(d.data[d.position+1])<<8 ^ int32(d.data[d.position+2])<<16 ^ int32(d.data[d.position+3])<<24 ^ d.lastPoint.PrevNextPointID1
		d.position += 4
	default:
		return fmt.Errorf("tssc: invalid code %d received at position %d (last position %d)", code, d.position, d.lastPosition)
	}
	return nil
}

func (d *Decoder) decodeTimestamp(code CodeWord) int64 {
	var timestamp int64

	switch code {
	case TimeDelta1Forward:
		timestamp = d.prevTimestamp1 + d.prevTimeDelta1
	case TimeDelta2Forward:
		timestamp = d.prevTimestamp1 + d.prevTimeDelta2
	case TimeDelta3Forward:
		timestamp = d.prevTimestamp1 + d.prevTimeDelta3
	case TimeDelta4Forward:
		timestamp = d.prevTimestamp1 + d.prevTimeDelta4
	case TimeDelta1Reverse:
		timestamp = d.prevTimestamp1 - d.prevTimeDelta1
	case TimeDelta2Reverse:
		timestamp = d.prevTimestamp1 - d.prevTimeDelta2
	case TimeDelta3Reverse:
		timestamp = d.prevTimestamp1 - d.prevTimeDelta3
	case TimeDelta4Reverse:
		timestamp = d.prevTimestamp1 - d.prevTimeDelta4
	case Timestamp2:
		timestamp = d.prevTimestamp2
	default:
		value, n := endian.ReadUint64(d.data[d.position:])
		d.position += n
		timestamp = d.prevTimestamp1 ^ int64(value)
	}

	d.prevTimeDelta1, d.prevTimeDelta2, d.prevTimeDelta3, d.prevTimeDelta4 =
		rememberTimeDelta(d.prevTimestamp1, timestamp, d.prevTimeDelta1, d.prevTimeDelta2, d.prevTimeDelta3, d.prevTimeDelta4)

	d.prevTimestamp2 = d.prevTimestamp1
	d.prevTimestamp1 = timestamp

	return timestamp
}

func (d *Decoder) decodeStateFlags(code CodeWord, nextPoint *pointMetadata) uint32 {
	var stateFlags uint32

	if code == StateFlags2 {
		stateFlags = nextPoint.PrevStateFlags2
	} else {
		value, n := endian.ReadUint32(d.data[d.position:])
		d.position += n
		stateFlags = value
	}

	nextPoint.PrevStateFlags2 = nextPoint.PrevStateFlags1
	nextPoint.PrevStateFlags1 = stateFlags

	return stateFlags
}

func (d *Decoder) readBit() int32 {
	if d.bitStreamCount == 0 {
		d.bitStreamCount = 8
		d.bitStreamCache = int32(d.data[d.position])
		d.position++
	}

	d.bitStreamCount--

	return d.bitStreamCache >> uint(d.bitStreamCount) & 1
}

func (d *Decoder) readBits4() int32 {
	return d.readBit()<<3 | d.readBit()<<2 | d.readBit()<<1 | d.readBit()
}

func (d *Decoder) readBits5() int32 {
	return d.readBit()<<4 | d.readBit()<<3 | d.readBit()<<2 | d.readBit()<<1 | d.readBit()
}
