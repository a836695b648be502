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

package protocol

import "errors"

// Sentinel errors for the taxonomy in the specification's error handling
// design: callers branch on these with errors.Is, wrapping with additional
// context via fmt.Errorf("...: %w", err).
var (
	// ErrProtocolViolation covers malformed frames, unknown response codes,
	// and length overflows. The session tears the connection down and
	// triggers reconnect on this error.
	ErrProtocolViolation = errors.New("sttp: protocol violation")

	// ErrUnsupportedExtension is returned when the publisher's negotiated
	// implementation-specific extension id does not match ours. Per the
	// specification this must not be retried without a configuration
	// change, so the session does not auto-reconnect after it.
	ErrUnsupportedExtension = errors.New("sttp: UNSUPPORTED EXTENSION")

	// ErrCacheMiss indicates a data packet referenced a runtime index not
	// present in the active signal-index cache. The measurement is
	// skipped; the connection is not closed.
	ErrCacheMiss = errors.New("sttp: signal index cache miss")

	// ErrEndOfStream indicates the transport signaled EOF before the
	// requested number of bytes arrived.
	ErrEndOfStream = errors.New("sttp: end of stream")

	// ErrTSSCDesync indicates a TSSC sequence number regression. The
	// decoder continues; this is logged, rate-limited, and does not
	// disconnect.
	ErrTSSCDesync = errors.New("sttp: tssc sequence desync")
)
