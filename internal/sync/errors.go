// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package sync

import (
	"errors"
	"fmt"
)

// ErrRateLimited signals an HTTP 429 from the remote API. It is retried on
// the same fixed-delay path as other transient failures but counted
// separately in logs and metrics.
var ErrRateLimited = errors.New("rate limited by remote API")

// RemoteError is a non-2xx response from the remote API.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote API returned status %d: %s", e.Status, e.Body)
}

// Transient reports whether the failure is worth retrying. Server-side
// errors are; client-side errors (bad request, auth) are not.
func (e *RemoteError) Transient() bool {
	return e.Status >= 500
}

// isTransient classifies an error for the fetcher's retry loop. Rate limits,
// 5xx responses, and network-level failures are all retried the same way.
func isTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Transient()
	}
	// Network-level failures arrive as transport errors, not RemoteError.
	var malformed *MalformedResponseError
	return !errors.As(err, &malformed)
}

// MalformedResponseError reports an envelope field that is absent or holds a
// value the contract forbids. It is never retried: the payload arrived, it
// just cannot be trusted.
type MalformedResponseError struct {
	Field  string
	Reason string // empty means the field was absent
}

func (e *MalformedResponseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed remote response: field %q %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed remote response: missing required field %q", e.Field)
}
