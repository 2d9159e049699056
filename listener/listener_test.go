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

package listener_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jimis/cfserverd/acl"
	"github.com/jimis/cfserverd/listener"
	"github.com/jimis/cfserverd/protocol"
	"github.com/jimis/cfserverd/state"
	"github.com/jimis/cfserverd/wire"
)

func TestServeAcceptsAndDispatchesVersion(t *testing.T) {
	st := state.Build(state.Config{})
	mgr := state.NewManager(st, 4, 3)
	col := protocol.Collaborators{
		PathACL: acl.NewEvaluator(acl.KindPathPrefix, nil, nil),
		VarACL:  acl.NewEvaluator(acl.KindLiteral, nil, nil),
		Roles:   acl.NewRoleAuthorizer(nil),
	}
	dispatch := protocol.New(col)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := "127.0.0.1:18273"
	l := listener.New(addr, mgr, dispatch,
		listener.WithAcceptTimeout(100*time.Millisecond),
		listener.WithPurge(time.Hour, 2*time.Hour))

	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := wire.WriteFrame(c, wire.Frame{Flag: wire.Done, Payload: []byte("VERSION")}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	reply, err := wire.ReadFrame(c, time.Second)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if string(reply.Payload) != "OK: cfserverd/1.0.0 protocol/1" {
		t.Fatalf("reply = %q", reply.Payload)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancel")
	}
}
