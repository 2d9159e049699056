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

package listener

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/errcode"
	"github.com/jimis/cfserverd/protocol"
	"github.com/jimis/cfserverd/state"
	"github.com/jimis/cfserverd/wire"
)

// Listener is the bind/accept loop of spec.md §4.4. One Listener serves one
// TCP address; the TLS variant is negotiated per-connection via STARTTLS,
// not by a second listen socket.
type Listener struct {
	addr     string
	mgr      *state.Manager
	dispatch protocol.Dispatcher

	acceptTimeout time.Duration
	purgeInterval time.Duration
	purgeHorizon  time.Duration
	lingerSeconds int
	rate          *rateTrack
}

// New returns a Listener bound to addr (not yet listening) that admits
// connections through mgr and serves them through dispatch.
func New(addr string, mgr *state.Manager, dispatch protocol.Dispatcher, opts ...Option) *Listener {
	l := &Listener{
		addr:          addr,
		mgr:           mgr,
		dispatch:      dispatch,
		acceptTimeout: defaultAcceptTimeout,
		purgeInterval: defaultPurgeInterval,
		purgeHorizon:  defaultPurgeHorizon,
		lingerSeconds: defaultLingerSeconds,
		rate:          newRateTrack(defaultRateHalfLife, defaultRateCeiling),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Serve binds the listen socket and runs the accept loop until ctx is
// canceled or a termination signal (TERM, INT, USR1, USR2) arrives; HUP and
// PIPE are ignored for the lifetime of the call (spec.md §6 "Signal
// contract"). It returns nil on a clean shutdown, and a non-nil error on a
// bind failure or when Accept fails for a reason other than a timeout or
// shutdown.
func (l *Listener) Serve(ctx context.Context) error {
	lc := net.ListenConfig{Control: controlSocketOptions}
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return errcode.New(errcode.InternalInvariant, "bind listen socket", err)
	}
	defer ln.Close()

	tcpLn, _ := ln.(*net.TCPListener)

	sigCh := installTerminationSignals()
	stop := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		close(stop)
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.purgeLoop(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return nil
		default:
		}

		if tcpLn != nil {
			_ = tcpLn.SetDeadline(time.Now().Add(l.acceptTimeout))
		}

		raw, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-stop:
				wg.Wait()
				return nil
			default:
				wg.Wait()
				return errcode.New(errcode.TransportClosed, "accept failed", err)
			}
		}

		// Workers are detached: spec.md §5 "The listener owns no
		// per-connection work". Serve does not wait for them; each
		// observes stop on its own next dispatch iteration.
		go l.serveConn(raw, stop)
	}
}

// serveConn runs one accepted connection's detached worker lifecycle:
// admission filtering, the capacity cap, the Connection's dispatch loop,
// and teardown. Every exit path unwinds live_connections/active_workers
// bookkeeping exactly once, per spec.md §4.4 "On worker exit". stop is the
// process-wide termination flag; the worker finishes its current request
// and then observes it before starting the next one (spec.md §5
// "Cancellation & timeouts").
func (l *Listener) serveConn(raw net.Conn, stop <-chan struct{}) {
	ip := peerIP(raw.RemoteAddr())

	// rateTrack never vetoes admission itself (SPEC_FULL.md §12); it only
	// surfaces a sustained surge to the same apoptosis guard BeginWorker's
	// rejection streak feeds.
	if l.mgr.NoteSurge(l.rate.Hit(ip)) {
		os.Exit(1)
	}

	if !l.mgr.Admit(ip) {
		raw.Close()
		return
	}
	defer l.mgr.Unregister(ip)

	if !l.mgr.BeginWorker() {
		_ = wire.WriteFrame(raw, wire.Frame{Flag: wire.Done, Payload: []byte(busyMessage)})
		raw.Close()
		if l.mgr.ShouldApoptose() {
			os.Exit(1)
		}
		return
	}
	defer l.mgr.EndWorker()
	defer raw.Close()

	applySocketOptions(raw, l.lingerSeconds)

	c := conn.New(raw, ip)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := l.dispatch.Dispatch(c); err != nil {
			return
		}
	}
}

// purgeLoop periodically evicts stale live_connections entries until stop
// is closed (spec.md §4.4 "Purge").
func (l *Listener) purgeLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(l.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.mgr.Purge(l.purgeHorizon)
		}
	}
}

// peerIP normalizes a net.Addr into the bare IP string used as a
// live_connections / ACL key, unwrapping the IPv4-in-IPv6 form (spec.md
// §4.4 "stash IPv4-mapped IPv6 normalization of peer address").
func peerIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return host
}

// applySocketOptions sets TCP_NODELAY and SO_LINGER on an accepted socket,
// per spec.md §6. Both are exposed directly by net.TCPConn; no platform-
// specific syscall is needed for these two (unlike SO_REUSEADDR and
// IPV6_V6ONLY, set at bind time in socket_unix.go/socket_windows.go).
func applySocketOptions(raw net.Conn, lingerSeconds int) {
	tcp, ok := raw.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcp.SetNoDelay(true)
	_ = tcp.SetLinger(lingerSeconds)
}
