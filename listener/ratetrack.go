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

package listener

import (
	"sync"
	"time"
)

// rateTrack is pure telemetry: a decaying per-IP accept counter that tells
// each accepted connection's worker (serveConn) that its address is
// connecting unusually fast, so it can
// feed that signal into the apoptosis guard (SPEC_FULL.md §12). It holds no
// veto over admission; Manager.Admit's attacker/non_attacker/multi_conn
// checks remain the only thing that ever refuses a connection outright.
type rateTrack struct {
	mu       sync.Mutex
	counts   map[string]*decayingCount
	halfLife time.Duration
	ceiling  float64
}

type decayingCount struct {
	value    float64
	lastSeen time.Time
}

// newRateTrack returns a tracker that halves every counter's score every
// halfLife, treating a score at or above ceiling as "hot".
func newRateTrack(halfLife time.Duration, ceiling float64) *rateTrack {
	return &rateTrack{
		counts:   make(map[string]*decayingCount),
		halfLife: halfLife,
		ceiling:  ceiling,
	}
}

// Hit records one new accept from ip and reports whether its decayed score
// is now at or above the configured ceiling. The comparison allows
// hotTolerance of slack, so ceiling hits that arrive back to back still
// count as hot after the sliver of decay between them.
func (r *rateTrack) Hit(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	c, ok := r.counts[ip]
	if !ok {
		c = &decayingCount{lastSeen: now}
		r.counts[ip] = c
	}

	elapsed := now.Sub(c.lastSeen)
	if elapsed > 0 && r.halfLife > 0 {
		halvings := float64(elapsed) / float64(r.halfLife)
		c.value *= decayFactor(halvings)
	}
	c.value++
	c.lastSeen = now

	return c.value >= r.ceiling-hotTolerance
}

// hotTolerance is the slack Hit allows when comparing a score to ceiling.
const hotTolerance = 1e-6

// decayFactor returns 0.5^halvings without pulling in math.Pow for a single
// call site.
func decayFactor(halvings float64) float64 {
	if halvings >= 64 {
		return 0
	}
	f := 1.0
	for ; halvings >= 1; halvings-- {
		f *= 0.5
	}
	// fractional remainder: linear approximation is good enough for a
	// telemetry signal, not a precise physical decay.
	return f * (1 - 0.5*halvings)
}
