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
	"math"

	"github.com/gridprotectionalliance/go-sttp/endian"
)

// Encoder is the publisher-side mirror of Decoder: it assigns each signal
// a stable point ID on first use, then emits the same delta/XOR/adaptive
// prefix codes Decoder expects, in the order Decoder expects them.
type Encoder struct {
	data     []byte
	position int

	prevTimestamp1 int64
	prevTimestamp2 int64

	prevTimeDelta1 int64
	prevTimeDelta2 int64
	prevTimeDelta3 int64
	prevTimeDelta4 int64

	lastPoint *pointMetadata
	points    map[int32]*pointMetadata

	bitStreamCount       int32
	bitStreamCache       int32
	bitStreamBufferIndex int

	// SequenceNumber mirrors Decoder.SequenceNumber; callers increment it
	// once per buffer produced.
	SequenceNumber uint16
}

// NewEncoder creates an empty Encoder.
func NewEncoder() *Encoder {
	e := &Encoder{
		prevTimeDelta1: math.MaxInt64,
		prevTimeDelta2: math.MaxInt64,
		prevTimeDelta3: math.MaxInt64,
		prevTimeDelta4: math.MaxInt64,
		points:         make(map[int32]*pointMetadata),
	}
	e.lastPoint = newPointMetadata(e.writeBits, nil, nil)
	return e
}

// SetBuffer assigns the working buffer Encode appends to. Call it before
// the first TryAddMeasurement of each outgoing TSSC buffer.
func (e *Encoder) SetBuffer(data []byte) {
	e.data = data
	e.position = 0
	e.bitStreamCount = 0
	e.bitStreamCache = 0
}

// Bytes returns the buffer built so far, flushing any pending bitstream
// bits into it first.
func (e *Encoder) Bytes() []byte {
	e.flushBits()
	return e.data[:e.position]
}

// FinishBlock appends the EndOfStream code, flushing the bitstream, and
// returns the completed buffer.
func (e *Encoder) FinishBlock() []byte {
	_ = e.lastPoint.WriteCode(EndOfStream)
	return e.Bytes()
}

// TryAddMeasurement encodes one measurement's point ID, timestamp, state
// flags, and value into the working buffer.
func (e *Encoder) TryAddMeasurement(pointID int32, timestamp int64, stateFlags uint32, value float32) error {
	nextPoint, ok := e.points[pointID]
	if !ok {
		nextPoint = newPointMetadata(e.writeBits, nil, nil)
		e.points[pointID] = nextPoint
	}

	if err := e.encodePointID(pointID); err != nil {
		return err
	}
	nextPoint.PrevNextPointID1 = pointID + 1

	timeCode := e.encodeTimestamp(timestamp)
	if err := e.lastPoint.WriteCode(timeCode); err != nil {
		return err
	}

	stateFlagsCode := e.encodeStateFlags(stateFlags, nextPoint)
	if err := e.lastPoint.WriteCode(stateFlagsCode); err != nil {
		return err
	}

	valueCode := e.encodeValue(value, nextPoint)
	if err := e.lastPoint.WriteCode(valueCode); err != nil {
		return err
	}

	e.lastPoint = nextPoint
	return nil
}

func (e *Encoder) encodePointID(pointID int32) error {
	diff := uint32(e.lastPoint.PrevNextPointID1 ^ pointID)
	e.lastPoint.PrevNextPointID1 = pointID

	var code CodeWord
	switch {
	case diff < 1<<4:
		code = PointIDXor4
	case diff < 1<<8:
		code = PointIDXor8
	case diff < 1<<12:
		code = PointIDXor12
	case diff < 1<<16:
		code = PointIDXor16
	case diff < 1<<20:
		code = PointIDXor20
	case diff < 1<<24:
		code = PointIDXor24
	default:
		code = PointIDXor32
	}

	if err := e.lastPoint.WriteCode(code); err != nil {
		return err
	}

	switch code {
	case PointIDXor4:
		e.writeBits(int32(diff), 4)
	case PointIDXor8:
		e.writeByte(byte(diff))
	case PointIDXor12:
		e.writeBits(int32(diff&0xF), 4)
		e.writeByte(byte(diff >> 4))
	case PointIDXor16:
		e.writeByte(byte(diff))
		e.writeByte(byte(diff >> 8))
	case PointIDXor20:
		e.writeBits(int32(diff&0xF), 4)
		e.writeByte(byte(diff >> 4))
		e.writeByte(byte(diff >> 12))
	case PointIDXor24:
		e.writeByte(byte(diff))
		e.writeByte(byte(diff >> 8))
		e.writeByte(byte(diff >> 16))
	case PointIDXor32:
		e.writeByte(byte(diff))
		e.writeByte(byte(diff >> 8))
		e.writeByte(byte(diff >> 16))
		e.writeByte(byte(diff >> 24))
	}

	return nil
}

func (e *Encoder) encodeTimestamp(timestamp int64) CodeWord {
	var code CodeWord

	switch timestamp {
	case e.prevTimestamp1 + e.prevTimeDelta1:
		code = TimeDelta1Forward
	case e.prevTimestamp1 + e.prevTimeDelta2:
		code = TimeDelta2Forward
	case e.prevTimestamp1 + e.prevTimeDelta3:
		code = TimeDelta3Forward
	case e.prevTimestamp1 + e.prevTimeDelta4:
		code = TimeDelta4Forward
	case e.prevTimestamp1 - e.prevTimeDelta1:
		code = TimeDelta1Reverse
	case e.prevTimestamp1 - e.prevTimeDelta2:
		code = TimeDelta2Reverse
	case e.prevTimestamp1 - e.prevTimeDelta3:
		code = TimeDelta3Reverse
	case e.prevTimestamp1 - e.prevTimeDelta4:
		code = TimeDelta4Reverse
	case e.prevTimestamp2:
		code = Timestamp2
	default:
		code = TimeXor7Bit
		e.data = endian.WriteUint64(e.data, uint64(e.prevTimestamp1^timestamp))
		e.position = len(e.data)
	}

	e.prevTimeDelta1, e.prevTimeDelta2, e.prevTimeDelta3, e.prevTimeDelta4 =
		rememberTimeDelta(e.prevTimestamp1, timestamp, e.prevTimeDelta1, e.prevTimeDelta2, e.prevTimeDelta3, e.prevTimeDelta4)

	e.prevTimestamp2 = e.prevTimestamp1
	e.prevTimestamp1 = timestamp

	return code
}

func (e *Encoder) encodeStateFlags(stateFlags uint32, nextPoint *pointMetadata) CodeWord {
	var code CodeWord

	if stateFlags == nextPoint.PrevStateFlags2 {
		code = StateFlags2
	} else {
		code = StateFlags7Bit32
		e.data = endian.WriteUint32(e.data, stateFlags)
		e.position = len(e.data)
	}

	nextPoint.PrevStateFlags2 = nextPoint.PrevStateFlags1
	nextPoint.PrevStateFlags1 = stateFlags

	return code
}

func (e *Encoder) encodeValue(value float32, nextPoint *pointMetadata) CodeWord {
	valueRaw := math.Float32bits(value)

	var code CodeWord
	switch {
	case valueRaw == nextPoint.PrevValue1:
		code = Value1
	case valueRaw == nextPoint.PrevValue2:
		code = Value2
		nextPoint.PrevValue2 = nextPoint.PrevValue1
		nextPoint.PrevValue1 = valueRaw
	case valueRaw == nextPoint.PrevValue3:
		code = Value3
		nextPoint.PrevValue3 = nextPoint.PrevValue2
		nextPoint.PrevValue2 = nextPoint.PrevValue1
		nextPoint.PrevValue1 = valueRaw
	case valueRaw == 0:
		code = ValueZero
		nextPoint.PrevValue3 = nextPoint.PrevValue2
		nextPoint.PrevValue2 = nextPoint.PrevValue1
		nextPoint.PrevValue1 = valueRaw
	default:
		diff := valueRaw ^ nextPoint.PrevValue1

		switch {
		case diff < 1<<4:
			code = ValueXor4
			e.writeBits(int32(diff), 4)
		case diff < 1<<8:
			code = ValueXor8
			e.writeByte(byte(diff))
		case diff < 1<<12:
			code = ValueXor12
			e.writeBits(int32(diff&0xF), 4)
			e.writeByte(byte(diff >> 4))
		case diff < 1<<16:
			code = ValueXor16
			e.writeByte(byte(diff))
			e.writeByte(byte(diff >> 8))
		case diff < 1<<20:
			code = ValueXor20
			e.writeBits(int32(diff&0xF), 4)
			e.writeByte(byte(diff >> 4))
			e.writeByte(byte(diff >> 12))
		case diff < 1<<24:
			code = ValueXor24
			e.writeByte(byte(diff))
			e.writeByte(byte(diff >> 8))
			e.writeByte(byte(diff >> 16))
		case diff < 1<<28:
			code = ValueXor28
			e.writeBits(int32(diff&0xF), 4)
			e.writeByte(byte(diff >> 4))
			e.writeByte(byte(diff >> 12))
			e.writeByte(byte(diff >> 20))
		default:
			code = ValueXor32
			e.writeByte(byte(diff))
			e.writeByte(byte(diff >> 8))
			e.writeByte(byte(diff >> 16))
			e.writeByte(byte(diff >> 24))
		}

		nextPoint.PrevValue3 = nextPoint.PrevValue2
		nextPoint.PrevValue2 = nextPoint.PrevValue1
		nextPoint.PrevValue1 = valueRaw
	}

	return code
}

func (e *Encoder) writeByte(b byte) {
	if e.position < len(e.data) {
		e.data[e.position] = b
	} else {
		e.data = append(e.data, b)
	}
	e.position++
}

// reserveByte claims the next sequential byte slot for a bitstream cache
// byte that is still being filled, advancing position past it the same
// instant Decoder.readBit would load and advance past that slot. Any raw
// byte fields written before the cache fills land after this reserved
// slot, exactly where Decoder's raw byte reads expect them; writeBit
// patches the slot's real value in once the 8th bit arrives.
func (e *Encoder) reserveByte() {
	if e.position < len(e.data) {
		e.position++
		return
	}
	e.data = append(e.data, 0)
	e.position++
}

func (e *Encoder) writeBit(bit int32) {
	if e.bitStreamCount == 0 {
		e.bitStreamBufferIndex = e.position
		e.reserveByte()
	}

	e.bitStreamCache = e.bitStreamCache<<1 | bit
	e.bitStreamCount++

	if e.bitStreamCount == 8 {
		e.data[e.bitStreamBufferIndex] = byte(e.bitStreamCache)
		e.bitStreamCache = 0
		e.bitStreamCount = 0
	}
}

// writeBits appends the low `length` bits of value to the bitstream
// cache, one bit at a time, most significant bit first.
func (e *Encoder) writeBits(value int32, length int32) {
	for i := length - 1; i >= 0; i-- {
		e.writeBit((value >> uint(i)) & 1)
	}
}

// flushBits pads any partial byte in the bitstream cache with zero bits
// and patches it into its already-reserved slot, mirroring how the
// reference encoder ends a block.
func (e *Encoder) flushBits() {
	if e.bitStreamCount == 0 {
		return
	}
	e.bitStreamCache <<= uint(8 - e.bitStreamCount)
	e.data[e.bitStreamBufferIndex] = byte(e.bitStreamCache)
	e.bitStreamCache = 0
	e.bitStreamCount = 0
}
