/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package listener binds the TCP listen socket, accepts connections, and
// spawns one detached worker per admitted connection (spec.md §4.4, §5,
// §6). It owns nothing about the protocol itself; every accepted
// connection is handed to a protocol.Dispatcher in a loop until the
// dispatcher reports the connection is done.
package listener

import (
	"time"
)

const (
	// defaultAcceptTimeout bounds how long Accept blocks before the accept
	// loop re-checks the termination flag, per spec.md §5's "select-style
	// wait ... with a ~60s timeout".
	defaultAcceptTimeout = 60 * time.Second

	// defaultPurgeInterval is how often live_connections is scanned for
	// stale entries.
	defaultPurgeInterval = 5 * time.Minute

	// defaultPurgeHorizon is the default eviction age, per spec.md §4.4.
	defaultPurgeHorizon = 2 * time.Hour

	// defaultLingerSeconds is SO_LINGER's timeout, per spec.md §6.
	defaultLingerSeconds = 60

	// defaultRateHalfLife and defaultRateCeiling configure the per-IP
	// accept-rate telemetry of ratetrack.go (SPEC_FULL.md §12): a score
	// decaying to half every ten seconds, treated as "hot" at 20 accepts.
	defaultRateHalfLife = 10 * time.Second
	defaultRateCeiling  = 20.0

	busyMessage = "ERROR: server too busy"
)

// Option configures a Listener at construction time.
type Option func(*Listener)

// WithPurge overrides the default purge scan interval and eviction
// horizon for live_connections.
func WithPurge(interval, horizon time.Duration) Option {
	return func(l *Listener) {
		l.purgeInterval = interval
		l.purgeHorizon = horizon
	}
}

// WithAcceptTimeout overrides the accept-loop's wakeup period.
func WithAcceptTimeout(d time.Duration) Option {
	return func(l *Listener) {
		l.acceptTimeout = d
	}
}

// WithLinger overrides SO_LINGER's timeout, in seconds.
func WithLinger(seconds int) Option {
	return func(l *Listener) {
		l.lingerSeconds = seconds
	}
}

// WithRateTracking overrides the per-IP accept-rate telemetry's decay
// half-life and hot-score ceiling.
func WithRateTracking(halfLife time.Duration, ceiling float64) Option {
	return func(l *Listener) {
		l.rate = newRateTrack(halfLife, ceiling)
	}
}
