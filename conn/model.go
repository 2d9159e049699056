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

// Package conn holds the per-connection state a single worker owns for the
// lifetime of one accepted socket (spec.md §3 "Connection"). Nothing in
// this package is safe for concurrent use from more than one goroutine: a
// Connection is created on accept, mutated only by the worker that owns it,
// and destroyed when that worker exits.
package conn

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/jimis/cfserverd/wire"
)

// Variant identifies which protocol variant a Connection is speaking.
type Variant uint8

const (
	Classic Variant = iota
	TLS
)

func (v Variant) String() string {
	if v == TLS {
		return "tls"
	}
	return "classic"
}

// Connection is the per-socket state described by spec.md §3. Flags that
// are set once (IDVerified, RSAAuth) are never cleared for the lifetime of
// the connection; MapRoot is reset at the start of every ACL evaluation by
// the caller, not by this package.
type Connection struct {
	Transport wire.Transport
	raw       net.Conn
	tlsConn   *tls.Conn
	Variant   Variant

	IP       string
	Hostname string
	Username string
	KeyFingerprint string

	IDVerified bool
	RSAAuth    bool
	Trust      bool
	MapRoot    bool

	SessionKey []byte
	CipherTag  byte

	scratch []byte

	createdAt time.Time
}

// New constructs a Connection over an already-accepted net.Conn. The peer's
// IP is normalized by the caller (IPv4-in-IPv6 unwrapping happens in
// listener, which has the raw net.Addr).
func New(raw net.Conn, ip string) *Connection {
	return &Connection{
		Transport: raw,
		raw:       raw,
		Variant:   Classic,
		IP:        ip,
		createdAt: time.Now(),
	}
}

// NewTLS constructs a Connection over an already-handshaked *tls.Conn.
func NewTLS(tlsConn *tls.Conn, ip string) *Connection {
	return &Connection{
		Transport: tlsConn,
		raw:       tlsConn,
		tlsConn:   tlsConn,
		Variant:   TLS,
		IP:        ip,
		createdAt: time.Now(),
	}
}

// Scratch returns the connection's reusable output buffer, growing it to at
// least size bytes. Reusing one buffer per connection avoids a per-reply
// allocation for the common case of small fixed replies (spec.md §9 buffer
// hygiene).
func (c *Connection) Scratch(size int) []byte {
	if cap(c.scratch) < size {
		c.scratch = make([]byte, size)
	}
	return c.scratch[:size]
}

// Close tears down the underlying transport. Safe to call more than once.
func (c *Connection) Close() error {
	if c.raw == nil {
		return nil
	}
	err := c.raw.Close()
	c.raw = nil
	return err
}

// RawConn returns the underlying net.Conn, for the STARTTLS handler to wrap
// in a server-side *tls.Conn.
func (c *Connection) RawConn() net.Conn {
	return c.raw
}

// UpgradeToTLS switches a Classic connection to the TLS variant in place,
// after the STARTTLS handshake has completed on the same underlying
// socket. Per spec.md §9, the connection keeps its existing identity
// fields; only the transport and variant change.
func (c *Connection) UpgradeToTLS(tlsConn *tls.Conn) {
	c.Transport = tlsConn
	c.raw = tlsConn
	c.tlsConn = tlsConn
	c.Variant = TLS
}

// CreatedAt reports when this Connection was accepted, used by the
// live_connections purge horizon (spec.md §4.4).
func (c *Connection) CreatedAt() time.Time {
	return c.createdAt
}

// PeerCertificate returns the handshake's peer leaf certificate (raw DER), when
// this is a TLS connection and the peer presented one. Used by authsm's
// post-handshake pinning check.
func (c *Connection) PeerCertificate() []byte {
	if c.tlsConn == nil {
		return nil
	}
	state := c.tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0].Raw
}
