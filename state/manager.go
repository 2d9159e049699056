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

package state

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Manager owns the reload barrier and the two counters spec.md §5 names as
// needing a process-wide mutex: live_connections and active_workers. A
// single golang.org/x/sync/semaphore.Weighted, sized to MaxWorkers, serves
// as both: acquiring weight 1 models one live worker; acquiring the full
// weight models the reload barrier's "all workers quiescent" invariant
// (spec.md §4.9), and TryAcquire makes that acquisition non-blocking the
// way the spec's "if active_workers > 0, release lock and do not reload"
// wording requires.
type Manager struct {
	sem        *semaphore.Weighted
	maxWorkers int64

	mu      sync.RWMutex
	current *ServerState

	counterMu          sync.Mutex
	liveConnections    map[string]time.Time
	activeWorkers      int64
	rejectStreak       int
	surgeStreak        int
	apoptosisThreshold int
}

// NewManager returns a Manager holding initial as the first ServerState,
// with room for maxWorkers concurrent workers. apoptosisThreshold is the
// number of consecutive capacity rejections that triggers self-termination
// (spec.md §4.9); zero disables the apoptosis guard.
func NewManager(initial *ServerState, maxWorkers int64, apoptosisThreshold int) *Manager {
	return &Manager{
		sem:                semaphore.NewWeighted(maxWorkers),
		maxWorkers:         maxWorkers,
		current:            initial,
		liveConnections:    make(map[string]time.Time),
		apoptosisThreshold: apoptosisThreshold,
	}
}

// Current returns the live ServerState snapshot. The returned pointer is
// never mutated in place; a reload only ever swaps Manager's internal
// pointer to a new one.
func (m *Manager) Current() *ServerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Admit implements spec.md §4.4's accept-time filter and live_connections
// registration as one atomic step: deny-listed IPs are refused outright,
// a non-empty allow list acts as a whitelist, and an IP absent from
// multi_conn already present in live_connections is refused as a repeat
// connection. An admitted IP is registered in the same critical section to
// avoid a race between the check and the registration.
func (m *Manager) Admit(ip string) bool {
	st := m.Current()

	if matchesAny(st.Attackers, ip) {
		return false
	}
	if len(st.NonAttackers) > 0 && !matchesAny(st.NonAttackers, ip) {
		return false
	}

	m.counterMu.Lock()
	defer m.counterMu.Unlock()

	if !matchesAny(st.MultiConn, ip) {
		if _, live := m.liveConnections[ip]; live {
			return false
		}
	}
	m.liveConnections[ip] = time.Now()
	return true
}

// Unregister removes ip from live_connections, on worker exit (spec.md
// §4.4 "On worker exit: ... remove from live_connections").
func (m *Manager) Unregister(ip string) {
	m.counterMu.Lock()
	delete(m.liveConnections, ip)
	m.counterMu.Unlock()
}

// Purge evicts live_connections entries older than horizon, the listener's
// periodic safety net for records a crashed worker never cleaned up
// (spec.md §4.4). It returns the number of entries evicted.
func (m *Manager) Purge(horizon time.Duration) int {
	cutoff := time.Now().Add(-horizon)

	m.counterMu.Lock()
	defer m.counterMu.Unlock()

	n := 0
	for ip, seen := range m.liveConnections {
		if seen.Before(cutoff) {
			delete(m.liveConnections, ip)
			n++
		}
	}
	return n
}

// BeginWorker implements the capacity cap of spec.md §4.9: it reports
// whether a new worker may start by trying to acquire one unit of worker
// capacity without blocking. A false result means the caller must reply
// "server too busy" and close the connection without spawning a worker;
// ShouldApoptose then reports whether the rejection streak has crossed the
// configured threshold.
func (m *Manager) BeginWorker() bool {
	if !m.sem.TryAcquire(1) {
		m.counterMu.Lock()
		m.rejectStreak++
		m.counterMu.Unlock()
		return false
	}

	m.counterMu.Lock()
	m.activeWorkers++
	m.rejectStreak = 0
	m.counterMu.Unlock()
	return true
}

// EndWorker releases the capacity BeginWorker acquired and decrements
// active_workers. Must be called exactly once per successful BeginWorker.
func (m *Manager) EndWorker() {
	m.counterMu.Lock()
	m.activeWorkers--
	m.counterMu.Unlock()
	m.sem.Release(1)
}

// ActiveWorkers reports the current worker count.
func (m *Manager) ActiveWorkers() int64 {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	return m.activeWorkers
}

// ShouldApoptose reports whether consecutive capacity rejections have
// crossed the configured threshold — a liveness guard against a
// permanently stuck worker pool (spec.md §4.9). The caller is expected to
// terminate the process when this returns true.
func (m *Manager) ShouldApoptose() bool {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	return m.apoptosisThreshold > 0 && m.rejectStreak >= m.apoptosisThreshold
}

// NoteSurge records one telemetry sample from the listener's rate tracker:
// hot means the connecting IP's decaying accept rate crossed its configured
// ceiling. Unlike BeginWorker, NoteSurge never refuses anything by itself
// (spec.md §12 "it never itself denies a connection") — it only accumulates
// a consecutive-surge streak that feeds the same apoptosis guard as capacity
// rejections, and returns whether that guard has now tripped.
func (m *Manager) NoteSurge(hot bool) bool {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	if hot {
		m.surgeStreak++
	} else {
		m.surgeStreak = 0
	}
	return m.apoptosisThreshold > 0 && m.surgeStreak >= m.apoptosisThreshold
}

// Reload implements the barrier of spec.md §4.9: it tries to acquire every
// unit of worker capacity at once, which only succeeds when no worker is
// currently live. On success it calls build with the outgoing ServerState,
// installs whatever it returns, and releases the barrier; it reports false
// without calling build at all when any worker is active.
func (m *Manager) Reload(build func(previous *ServerState) (*ServerState, error)) (bool, error) {
	if !m.sem.TryAcquire(m.maxWorkers) {
		return false, nil
	}
	defer m.sem.Release(m.maxWorkers)

	next, err := build(m.Current())
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()
	return true, nil
}

// matchesAny (flat address/CIDR matching for attackers, non_attackers,
// multi_conn, and trust_keys) lives in model.go, shared by Manager.Admit
// and ServerState.TrustOnFirstUse.
