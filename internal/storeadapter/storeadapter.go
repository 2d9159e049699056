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

// Package storeadapter wires github.com/nutsdb/nutsdb behind the core's
// pinstore/ctxstore collaborator interfaces (cryptosvc.PinningStore,
// protocol.ContextStore), so the daemon is runnable
// standalone without a separate database dependency (spec.md §6
// "Persistent state"; SPEC_FULL.md §11). The core only ever depends on
// those interfaces; this package is the only place in the module that
// imports nutsdb.
package storeadapter

import (
	"regexp"

	"github.com/nutsdb/nutsdb"

	"github.com/jimis/cfserverd/cryptosvc"
)

const (
	bucketPins     = "pins"
	bucketContexts = "contexts"
)

// Store is a nutsdb-backed implementation of cryptosvc.PinningStore and
// protocol.ContextStore.
type Store struct {
	db *nutsdb.DB
}

// Open opens (creating if absent) a nutsdb database rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := nutsdb.Open(nutsdb.DefaultOptions, nutsdb.WithDir(dir))
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func pinKeyBytes(key cryptosvc.PinKey) []byte {
	return []byte(key.Username + "\x00" + key.IP)
}

// Lookup implements cryptosvc.PinningStore.
func (s *Store) Lookup(key cryptosvc.PinKey) (digest string, known bool) {
	_ = s.db.View(func(tx *nutsdb.Tx) error {
		e, err := tx.Get(bucketPins, pinKeyBytes(key))
		if err != nil {
			return nil
		}
		digest = string(e.Value)
		known = true
		return nil
	})
	return digest, known
}

// Store implements cryptosvc.PinningStore.
func (s *Store) Store(key cryptosvc.PinKey, digest string) error {
	return s.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucketPins, pinKeyBytes(key), []byte(digest), nutsdb.Persistent)
	})
}

// RecordClass persists one class name under the contexts bucket, for
// later consumption by MatchAndPurge.
func (s *Store) RecordClass(name string) error {
	return s.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucketContexts, []byte(name), []byte(name), nutsdb.Persistent)
	})
}

// MatchAndPurge implements protocol.ContextStore: every persisted class
// name matching pattern is returned and removed from the store in the
// same transaction, so a class is reported to CONTEXT/SCONTEXT at most
// once (spec.md §4.8).
func (s *Store) MatchAndPurge(pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	var matched []string
	err = s.db.Update(func(tx *nutsdb.Tx) error {
		entries, err := tx.GetAll(bucketContexts)
		if err != nil {
			if err == nutsdb.ErrBucket || err == nutsdb.ErrBucketEmpty || err == nutsdb.ErrKeyNotFound {
				return nil
			}
			return err
		}
		for _, e := range entries {
			name := string(e.Key)
			if !re.MatchString(name) {
				continue
			}
			if derr := tx.Delete(bucketContexts, e.Key); derr != nil {
				return derr
			}
			matched = append(matched, name)
		}
		return nil
	})
	return matched, err
}
