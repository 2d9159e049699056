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

// Package callback implements SCALLBACK's reverse-connect job queue and the
// connection_sharing-style pooled re-use of outbound callback sockets
// (spec.md §4.8; SPEC_FULL.md §12 supplement).
package callback

import (
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/jimis/cfserverd/errcode"
)

// Job is one pending reverse-connect request: the peer that asked the
// server to call it back, and when the request was queued.
type Job struct {
	ID       string
	IP       string
	Hostname string
	QueuedAt time.Time
}

// Queue is a bounded FIFO of pending callback Jobs, consumed by a callback
// Worker. A full queue refuses new jobs rather than
// blocking the requesting connection's worker.
type Queue struct {
	jobs chan Job
}

// NewQueue returns an empty Queue that holds at most capacity jobs.
func NewQueue(capacity int) *Queue {
	return &Queue{jobs: make(chan Job, capacity)}
}

// Enqueue implements protocol.CallbackQueue.
func (q *Queue) Enqueue(ip, hostname string) error {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return errcode.New(errcode.InternalInvariant, "generate callback job id", err)
	}

	job := Job{ID: id, IP: ip, Hostname: hostname, QueuedAt: time.Now()}
	select {
	case q.jobs <- job:
		return nil
	default:
		return errcode.New(errcode.ResourceCapacity, "callback queue is full", nil)
	}
}

// Jobs returns the channel the callback worker drains.
func (q *Queue) Jobs() <-chan Job {
	return q.jobs
}
