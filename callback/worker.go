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

package callback

import (
	"net"
	"time"
)

// Dialer opens a new connection to addr. Satisfied by
// (&net.Dialer{Timeout: ...}).Dial, overridden in tests with a fake.
type Dialer func(network, addr string) (net.Conn, error)

// Handler does whatever this deployment does with a freshly connected-or-
// reused callback socket (e.g. drive a CAUTH/SAUTH exchange and hand the
// connection to the dispatcher). Returning an error drops the connection
// instead of returning it to the Pool.
type Handler func(job Job, conn net.Conn) error

// Worker drains a Queue, reusing a pooled outbound connection to the same
// peer when one is idle-available instead of redialing (spec.md §4.8,
// SPEC_FULL.md §12 supplement).
type Worker struct {
	Queue   *Queue
	Pool    *Pool
	Port    string
	Dial    Dialer
	Handle  Handler
	Timeout time.Duration
}

// Run drains w.Queue until stop is closed, dialing (or reusing) one
// connection per job and handing it to w.Handle. A dial or handler failure
// is dropped silently from the worker's perspective; the caller is expected
// to observe failures through w.Handle itself (e.g. via a logger closure).
func (w *Worker) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case job, ok := <-w.Queue.Jobs():
			if !ok {
				return
			}
			w.process(job)
		}
	}
}

func (w *Worker) process(job Job) {
	addr := net.JoinHostPort(job.IP, w.Port)

	conn, reused := w.Pool.Get(addr)
	if !reused {
		dialed, err := w.Dial("tcp", addr)
		if err != nil {
			return
		}
		conn = dialed
	}

	if err := w.Handle(job, conn); err != nil {
		conn.Close()
		return
	}
	w.Pool.Put(addr, conn)
}
