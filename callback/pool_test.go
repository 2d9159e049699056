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
	"net"
	"testing"
	"time"

	"github.com/jimis/cfserverd/callback"
)

func dialedPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-accepted
	return client, server
}

func TestPoolGetReturnsWhatWasPut(t *testing.T) {
	p := callback.NewPool(4, time.Minute)
	client, server := dialedPair(t)
	defer server.Close()

	p.Put("10.0.0.1:5308", client)
	got, ok := p.Get("10.0.0.1:5308")
	if !ok {
		t.Fatal("expected a cached connection")
	}
	if got != client {
		t.Fatal("got a different connection than was put")
	}
	got.Close()
}

func TestPoolGetMissReturnsFalse(t *testing.T) {
	p := callback.NewPool(4, time.Minute)
	if _, ok := p.Get("10.0.0.9:5308"); ok {
		t.Fatal("expected a miss on an empty pool")
	}
}

func TestPoolRejectsOverCapacity(t *testing.T) {
	p := callback.NewPool(1, time.Minute)

	c1, s1 := dialedPair(t)
	defer s1.Close()
	c2, s2 := dialedPair(t)
	defer s2.Close()
	defer c2.Close()

	p.Put("10.0.0.1:5308", c1)
	p.Put("10.0.0.2:5308", c2)

	if _, ok := p.Get("10.0.0.2:5308"); ok {
		t.Fatal("second connection should have been rejected, not cached")
	}
	got, ok := p.Get("10.0.0.1:5308")
	if !ok || got != c1 {
		t.Fatal("first connection should still be cached")
	}
	got.Close()
}

func TestPoolEvictIdle(t *testing.T) {
	p := callback.NewPool(4, time.Millisecond)
	client, server := dialedPair(t)
	defer server.Close()

	p.Put("10.0.0.1:5308", client)
	time.Sleep(5 * time.Millisecond)

	if n := p.EvictIdle(); n != 1 {
		t.Fatalf("EvictIdle = %d, want 1", n)
	}
	if _, ok := p.Get("10.0.0.1:5308"); ok {
		t.Fatal("expected the idle entry to have been evicted")
	}
}
