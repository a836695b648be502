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

package client

import "time"

// backoff tracks the connector's exponential reconnect wait: doubling
// from cfg.RetryInterval on each failure, capped at cfg.MaxRetryInterval.
// Grounded on the reference sptp client's faulty-grandmaster backoff,
// narrowed to the one schedule §4.8 of the specification calls for.
type backoff struct {
	cfg     BackoffConfig
	counter int
}

func newBackoff(cfg BackoffConfig) *backoff {
	return &backoff{cfg: cfg}
}

func (b *backoff) reset() {
	b.counter = 0
}

// next returns the wait duration before the next attempt and increments
// the failure counter.
func (b *backoff) next() time.Duration {
	b.counter++
	wait := b.cfg.RetryInterval
	for i := 1; i < b.counter; i++ {
		wait *= 2
		if wait >= b.cfg.MaxRetryInterval {
			wait = b.cfg.MaxRetryInterval
			break
		}
	}
	return wait
}

// exhausted reports whether cfg.MaxRetries attempts have already been
// made; MaxRetries of -1 means unlimited.
func (b *backoff) exhausted() bool {
	return b.cfg.MaxRetries >= 0 && b.counter >= b.cfg.MaxRetries
}
