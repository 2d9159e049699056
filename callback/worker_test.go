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

package callback_test

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jimis/cfserverd/callback"
)

func TestWorkerDialsThenPoolsTheConnection(t *testing.T) {
	queue := callback.NewQueue(4)
	pool := callback.NewPool(4, time.Minute)

	client, server := dialedPair(t)
	defer server.Close()

	var dialed int
	var mu sync.Mutex
	var handled callback.Job

	w := &callback.Worker{
		Queue: queue,
		Pool:  pool,
		Port:  "5308",
		Dial: func(network, addr string) (net.Conn, error) {
			mu.Lock()
			dialed++
			mu.Unlock()
			return client, nil
		},
		Handle: func(job callback.Job, conn net.Conn) error {
			mu.Lock()
			handled = job
			mu.Unlock()
			return nil
		},
	}

	if err := queue.Enqueue("10.0.0.1", "hub.example.com"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		w.Run(stop)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if dialed != 1 {
		t.Fatalf("dialed = %d, want 1", dialed)
	}
	if handled.IP != "10.0.0.1" || handled.Hostname != "hub.example.com" {
		t.Fatalf("handled = %+v", handled)
	}
	if _, ok := pool.Get(net.JoinHostPort("10.0.0.1", "5308")); !ok {
		t.Fatal("expected the handled connection to be returned to the pool")
	}
}

func TestWorkerReusesAPooledConnectionInsteadOfDialing(t *testing.T) {
	queue := callback.NewQueue(4)
	pool := callback.NewPool(4, time.Minute)

	client, server := dialedPair(t)
	defer server.Close()
	defer client.Close()

	addr := net.JoinHostPort("10.0.0.1", "5308")
	pool.Put(addr, client)

	w := &callback.Worker{
		Queue: queue,
		Pool:  pool,
		Port:  "5308",
		Dial: func(network, addr string) (net.Conn, error) {
			t.Fatal("should not dial when a pooled connection is available")
			return nil, errors.New("unreachable")
		},
		Handle: func(job callback.Job, conn net.Conn) error {
			if conn != client {
				t.Fatal("expected the pooled connection to be handed to Handle")
			}
			return nil
		},
	}

	if err := queue.Enqueue("10.0.0.1", "hub.example.com"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		w.Run(stop)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)
	<-done
}
