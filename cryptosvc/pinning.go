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

package cryptosvc

// PinKey identifies one pinning-store entry: spec.md §6 keys the store by
// (username, ip, digest). The digest is not part of this lookup key: an
// entry is looked up by username+ip, and the digest stored under it is
// compared against the presented one.
type PinKey struct {
	Username string
	IP       string
}

// PinningStore is the fixed interface onto the external collaborator that
// persists trust-on-first-use key pins (spec.md §4.2, §6). The core
// (authsm) only calls Lookup/Store; the backing storage (in-memory for
// tests, nutsdb-backed for the running daemon — see storeadapter) is out of
// core scope.
type PinningStore interface {
	// Lookup returns the stored public-key digest for (username, ip), and
	// whether an entry exists at all.
	Lookup(key PinKey) (digest string, known bool)
	// Store pins digest as the trusted key for (username, ip). Overwrites
	// any previous entry; callers must only do this after trust-on-first-
	// use has been established (spec.md §4.6 step 4).
	Store(key PinKey, digest string) error
}

// MemoryPinningStore is a simple in-process PinningStore, used by tests and
// as a fallback when no persistent collaborator is configured. It is safe
// for concurrent use (lastseen_mutex equivalent, spec.md §5).
type MemoryPinningStore struct {
	mu   chan struct{}
	data map[PinKey]string
}

// NewMemoryPinningStore returns an empty, ready-to-use MemoryPinningStore.
func NewMemoryPinningStore() *MemoryPinningStore {
	m := &MemoryPinningStore{mu: make(chan struct{}, 1), data: make(map[PinKey]string)}
	m.mu <- struct{}{}
	return m
}

func (m *MemoryPinningStore) lock()   { <-m.mu }
func (m *MemoryPinningStore) unlock() { m.mu <- struct{}{} }

func (m *MemoryPinningStore) Lookup(key PinKey) (string, bool) {
	m.lock()
	defer m.unlock()
	d, ok := m.data[key]
	return d, ok
}

func (m *MemoryPinningStore) Store(key PinKey, digest string) error {
	m.lock()
	defer m.unlock()
	m.data[key] = digest
	return nil
}
