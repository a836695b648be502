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

// rememberTimeDelta folds the distance between prevTimestamp1 and
// timestamp into the 4 smallest distinct deltas seen so far (d1..d4,
// ascending), returning the updated set. Both Encoder and Decoder keep
// identical copies of this rolling window so a delta code like
// TimeDelta2Forward means the same thing on both ends.
func rememberTimeDelta(prevTimestamp1, timestamp, d1, d2, d3, d4 int64) (int64, int64, int64, int64) {
	minDelta := prevTimestamp1 - timestamp
	if minDelta < 0 {
		minDelta = -minDelta
	}

	if minDelta < d4 && minDelta != d1 && minDelta != d2 && minDelta != d3 {
		switch {
		case minDelta < d1:
			d4, d3, d2, d1 = d3, d2, d1, minDelta
		case minDelta < d2:
			d4, d3, d2 = d3, d2, minDelta
		case minDelta < d3:
			d4, d3 = d3, minDelta
		default:
			d4 = minDelta
		}
	}

	return d1, d2, d3, d4
}
