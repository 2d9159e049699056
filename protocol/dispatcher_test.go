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

package protocol_test

import (
	"net"
	"testing"
	"time"

	"github.com/jimis/cfserverd/acl"
	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/protocol"
	"github.com/jimis/cfserverd/wire"
)

func newTestDispatcher() protocol.Dispatcher {
	pathACL := acl.NewEvaluator(acl.KindPathPrefix, nil, nil)
	varACL := acl.NewEvaluator(acl.KindLiteral, nil, nil)
	roles := acl.NewRoleAuthorizer(nil)
	return protocol.New(protocol.Collaborators{
		PathACL: pathACL,
		VarACL:  varACL,
		Roles:   roles,
	})
}

func TestVersionRequiresNoAuth(t *testing.T) {
	d := newTestDispatcher()
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	c := conn.New(serverSide, "10.0.0.1")

	errCh := make(chan error, 1)
	go func() { errCh <- d.Dispatch(c) }()

	if err := wire.WriteFrame(pipeTransport{clientSide}, wire.Frame{Flag: wire.Done, Payload: []byte("VERSION")}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reply, err := wire.ReadFrame(pipeTransport{clientSide}, time.Second)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if string(reply.Payload) != "OK: cfserverd/1.0.0 protocol/1" {
		t.Fatalf("reply = %q", reply.Payload)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestGetBeforeAuthIsRefused(t *testing.T) {
	d := newTestDispatcher()
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	c := conn.New(serverSide, "10.0.0.1")

	errCh := make(chan error, 1)
	go func() { errCh <- d.Dispatch(c) }()

	if err := wire.WriteFrame(pipeTransport{clientSide}, wire.Frame{Flag: wire.Done, Payload: []byte("GET 2048 /etc/passwd")}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	if _, err := wire.ReadFrame(pipeTransport{clientSide}, time.Second); err != nil {
		t.Fatalf("read refusal: %v", err)
	}
	if err := <-errCh; err == nil {
		t.Fatal("expected Dispatch to report the precondition failure")
	}
}

type pipeTransport struct {
	net.Conn
}

func (p pipeTransport) SetReadDeadline(t time.Time) error { return p.Conn.SetReadDeadline(t) }
