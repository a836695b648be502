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

// Package tssc implements the Time-Series Special Compression codec (C5):
// a per-point delta encoder for measurement ID, timestamp, state flags,
// and value, layered over an adaptive bitstream prefix code.
package tssc

// CodeWord is one of the 32 command codes the bitstream alphabet uses to
// describe how the next field of a measurement was delta-encoded.
type CodeWord byte

const (
	EndOfStream CodeWord = 0

	PointIDXor4  CodeWord = 1
	PointIDXor8  CodeWord = 2
	PointIDXor12 CodeWord = 3
	PointIDXor16 CodeWord = 4
	PointIDXor20 CodeWord = 5
	PointIDXor24 CodeWord = 6
	PointIDXor32 CodeWord = 7

	TimeDelta1Forward CodeWord = 8
	TimeDelta2Forward CodeWord = 9
	TimeDelta3Forward CodeWord = 10
	TimeDelta4Forward CodeWord = 11
	TimeDelta1Reverse CodeWord = 12
	TimeDelta2Reverse CodeWord = 13
	TimeDelta3Reverse CodeWord = 14
	TimeDelta4Reverse CodeWord = 15
	Timestamp2        CodeWord = 16
	TimeXor7Bit       CodeWord = 17

	StateFlags2      CodeWord = 18
	StateFlags7Bit32 CodeWord = 19

	Value1     CodeWord = 20
	Value2     CodeWord = 21
	Value3     CodeWord = 22
	ValueZero  CodeWord = 23
	ValueXor4  CodeWord = 24
	ValueXor8  CodeWord = 25
	ValueXor12 CodeWord = 26
	ValueXor16 CodeWord = 27
	ValueXor20 CodeWord = 28
	ValueXor24 CodeWord = 29
	ValueXor28 CodeWord = 30
	ValueXor32 CodeWord = 31
)
