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
)

// pointMetadata tracks per-signal delta-encoding state: the previous
// point ID, state flags, and last three values used as XOR bases, plus
// the adaptive code-word histogram that picks one of four bitstream
// prefix modes for this point.
//
// Encoder and Decoder each own one pointMetadata per signal plus one
// "lastPoint" sentinel used to decode/encode the measurement ID code
// itself, mirroring the reference implementation's layout.
type pointMetadata struct {
	PrevNextPointID1 int32
	PrevStateFlags1  uint32
	PrevStateFlags2  uint32
	PrevValue1       uint32
	PrevValue2       uint32
	PrevValue3       uint32

	commandStats                [32]int32
	commandsSentSinceLastChange int32

	// Bit codes for the 4 modes of encoding.
	mode byte

	mode21                    CodeWord
	mode31, mode301           CodeWord
	mode41, mode401, mode4001 CodeWord
	startupMode               int32

	writeBits func(code int32, length int32)
	readBit   func() int32
	readBits5 func() int32
}

func newPointMetadata(writeBits func(int32, int32), readBit func() int32, readBits5 func() int32) *pointMetadata {
	return &pointMetadata{
		mode:      4,
		mode41:    Value1,
		mode401:   Value2,
		mode4001:  Value3,
		writeBits: writeBits,
		readBit:   readBit,
		readBits5: readBits5,
	}
}

// WriteCode emits code using this point's current adaptive prefix mode.
func (p *pointMetadata) WriteCode(code CodeWord) error {
	switch p.mode {
	case 1:
		p.writeBits(int32(code), 5)
	case 2:
		if code == p.mode21 {
			p.writeBits(1, 1)
		} else {
			p.writeBits(int32(code), 6)
		}
	case 3:
		switch code {
		case p.mode31:
			p.writeBits(1, 1)
		case p.mode301:
			p.writeBits(1, 2)
		default:
			p.writeBits(int32(code), 7)
		}
	case 4:
		switch code {
		case p.mode41:
			p.writeBits(1, 1)
		case p.mode401:
			p.writeBits(1, 2)
		case p.mode4001:
			p.writeBits(1, 3)
		default:
			p.writeBits(int32(code), 8)
		}
	default:
		return fmt.Errorf("tssc: coding error, unsupported mode %d", p.mode)
	}

	return p.updatedCodeStatistics(code)
}

// ReadCode decodes one code using this point's current adaptive prefix
// mode, advancing the statistics the same way WriteCode does so encoder
// and decoder stay in lockstep.
func (p *pointMetadata) ReadCode() (CodeWord, error) {
	var code CodeWord

	switch p.mode {
	case 1:
		code = CodeWord(p.readBits5())
	case 2:
		if p.readBit() == 1 {
			code = p.mode21
		} else {
			code = CodeWord(p.readBits5())
		}
	case 3:
		if p.readBit() == 1 {
			code = p.mode31
		} else if p.readBit() == 1 {
			code = p.mode301
		} else {
			code = CodeWord(p.readBits5())
		}
	case 4:
		if p.readBit() == 1 {
			code = p.mode41
		} else if p.readBit() == 1 {
			code = p.mode401
		} else if p.readBit() == 1 {
			code = p.mode4001
		} else {
			code = CodeWord(p.readBits5())
		}
	default:
		return 0, fmt.Errorf("tssc: unsupported compression mode %d", p.mode)
	}

	return code, p.updatedCodeStatistics(code)
}

func (p *pointMetadata) updatedCodeStatistics(code CodeWord) error {
	p.commandsSentSinceLastChange++
	p.commandStats[code]++

	switch {
	case p.startupMode == 0 && p.commandsSentSinceLastChange > 5:
		p.startupMode++
		return p.adaptCommands()
	case p.startupMode == 1 && p.commandsSentSinceLastChange > 20:
		p.startupMode++
		return p.adaptCommands()
	case p.startupMode == 2 && p.commandsSentSinceLastChange > 100:
		return p.adaptCommands()
	}

	return nil
}

// adaptCommands re-derives the cheapest of the four prefix modes from the
// running code histogram: the three most frequent codes get 1/2/3-bit
// prefixes (mode 4), two get 1/2-bit prefixes (mode 3), one gets a 1-bit
// prefix (mode 2), or no prefix at all is cheapest (mode 1) -- whichever
// total bit cost over the window is smallest.
func (p *pointMetadata) adaptCommands() error {
	var code1, code2, code3 byte
	code2, code3 = 1, 2
	var count1, count2, count3, total int32

	for i, count := range p.commandStats {
		p.commandStats[i] = 0
		total += count

		if count > count3 {
			if count > count1 {
				code3, count3 = code2, count2
				code2, count2 = code1, count1
				code1, count1 = byte(i), count
			} else if count > count2 {
				code3, count3 = code2, count2
				code2, count2 = byte(i), count
			} else {
				code3, count3 = byte(i), count
			}
		}
	}

	mode1Size := total * 5
	mode2Size := count1 + (total-count1)*6
	mode3Size := count1 + count2*2 + (total-count1-count2)*7
	mode4Size := count1 + count2*2 + count3*3 + (total-count1-count2-count3)*8

	minSize := int32(math.MaxInt32)
	minSize = min32(minSize, mode1Size)
	minSize = min32(minSize, mode2Size)
	minSize = min32(minSize, mode3Size)
	minSize = min32(minSize, mode4Size)

	switch minSize {
	case mode1Size:
		p.mode = 1
	case mode2Size:
		p.mode = 2
		p.mode21 = CodeWord(code1)
	case mode3Size:
		p.mode = 3
		p.mode31 = CodeWord(code1)
		p.mode301 = CodeWord(code2)
	case mode4Size:
		p.mode = 4
		p.mode41 = CodeWord(code1)
		p.mode401 = CodeWord(code2)
		p.mode4001 = CodeWord(code3)
	default:
		return fmt.Errorf("tssc: coding error selecting adaptive mode")
	}

	p.commandsSentSinceLastChange = 0
	return nil
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
