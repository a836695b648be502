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
	"encoding/binary"

	"github.com/google/uuid"
)

// Encode serializes c (ordered by ascending runtime index for determinism)
// into an UPDATESIGNALINDEXCACHE payload carrying subscriberID, the
// counterpart to Decode. It is used by the publisher side (C10) and by
// tests exercising the cache-rotation scenario end to end.
func Encode(c *SignalIndexCache, subscriberID uuid.UUID) []byte {
	indices := make([]int32, 0, len(c.byIndex))
	for idx := range c.byIndex {
		indices = append(indices, idx)
	}
	sortInt32s(indices)

	buf := make([]byte, 4, 4+16+4+len(indices)*64)
	buf = append(buf, subscriberID[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(indices)))

	for _, idx := range indices {
		rec := c.byIndex[idx]
		buf = binary.BigEndian.AppendUint32(buf, uint32(idx))
		buf = append(buf, rec.SignalID[:]...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(rec.Source)))
		buf = append(buf, rec.Source...)
		buf = binary.BigEndian.AppendUint64(buf, rec.NumericID)
	}

	// No unauthorized signal IDs in our publisher's cache messages.
	buf = binary.BigEndian.AppendUint32(buf, 0)

	binary.BigEndian.PutUint32(buf, uint32(len(buf)))
	return buf
}

func sortInt32s(s []int32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
