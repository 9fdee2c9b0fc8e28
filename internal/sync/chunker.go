// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package sync

import "time"

// Window is one bounded date sub-range of a sync operation. Windows exist
// because the NVD API rejects date ranges longer than its maximum span, so a
// full-history sync is split into an ordered sequence of them.
type Window struct {
	Start time.Time
	End   time.Time
}

// Span returns the window's length.
func (w Window) Span() time.Duration {
	return w.End.Sub(w.Start)
}

// PlanWindows splits [start, end] into an ordered, gap-free, non-overlapping
// sequence of windows, each spanning at most maxSpan, the last clamped to
// end. Consecutive windows satisfy prev.End+1ns == next.Start so a record's
// modification instant falls in exactly one window. Returns nil when start
// is after end.
//
// Pure function of its inputs; performs no I/O.
func PlanWindows(start, end time.Time, maxSpan time.Duration) []Window {
	if maxSpan <= 0 || start.After(end) {
		return nil
	}

	var windows []Window
	for cursor := start; !cursor.After(end); {
		windowEnd := cursor.Add(maxSpan)
		if windowEnd.After(end) {
			windowEnd = end
		}
		windows = append(windows, Window{Start: cursor, End: windowEnd})
		cursor = windowEnd.Add(time.Nanosecond)
	}
	return windows
}
