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

package protocol

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jimis/cfserverd/acl"
	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/cryptosvc"
	"github.com/jimis/cfserverd/errcode"
	"github.com/jimis/cfserverd/wire"
)

// lookupHost resolves a CAUTH-asserted hostname, overridable by tests.
var lookupHost = net.LookupHost

// defaultBlockSize and maxBlockSize bound GET's transfer block (spec.md
// §4.7: "default 2 KiB; capped by requested size").
const (
	defaultBlockSize = 2 * 1024
	maxBlockSize     = wire.MaxPayload - 64
)

// restatSmallEvery/restatLargeEvery implement the N-block re-stat cadence
// of spec.md §4.7 (N=3 for files <=10MiB, N=32 otherwise).
const (
	restatSmallEvery = 3
	restatLargeEvery = 32
	largeFileCutoff  = 10 * 1024 * 1024
)

const sourceChangedMessage = "source changed, aborting"

func (d *dispatcher) handle(c *conn.Connection, req request) error {
	switch req.verb {
	case VerbCAUTH:
		return d.handleCAUTH(c, req)
	case VerbSAUTH:
		return d.handleSAUTH(c, req)
	case VerbVersion:
		return d.reply(c, []byte(fmt.Sprintf("OK: cfserverd/%s protocol/%s", ModuleVersion, ProtocolVersion)))
	case VerbStartTLS:
		return d.handleStartTLS(c)
	case VerbGET, VerbSGET:
		return d.handleGet(c, req)
	case VerbOpenDir, VerbSOpenDir:
		return d.handleOpenDir(c, req)
	case VerbMD5, VerbSMD5:
		return d.handleMD5(c, req)
	case VerbVar, VerbSVar:
		return d.handleVar(c, req)
	case VerbContext, VerbSContext:
		return d.handleContext(c, req)
	case VerbQuery, VerbSQuery:
		return d.handleQuery(c, req)
	case VerbExec:
		return d.handleExec(c, req)
	case VerbSCallback:
		return d.handleSCallback(c, req)
	case VerbSynch, VerbSSynch:
		return d.handleSynch(c, req)
	default:
		err := errcode.New(errcode.ProtocolUnknownVerb, "unrecognized verb", nil)
		d.refuse(c, err)
		return err
	}
}

func (d *dispatcher) handleCAUTH(c *conn.Connection, req request) error {
	if len(req.args) < 3 {
		return errcode.New(errcode.ProtocolMalformed, "CAUTH requires ip, hostname, username", nil)
	}
	assertedIP, hostname, username := req.args[0], req.args[1], req.args[2]

	if d.col.Trust == nil || !d.col.Trust.SkipIdentityVerify(c.IP) {
		if err := verifyCAUTHIdentity(c.IP, assertedIP, hostname); err != nil {
			d.refuse(c, err)
			return err
		}
	}

	c.Hostname = hostname
	c.Username = username
	c.IDVerified = true
	return d.reply(c, []byte("OK"))
}

// verifyCAUTHIdentity checks a CAUTH assertion against the socket's real
// peer address, the way VerifyConnection does in the original daemon: the
// asserted IP must equal the actual peer address, and the asserted
// hostname must resolve, by forward lookup, to that same address. c.IP is
// never overwritten by the assertion; it was set once, correctly, at
// accept time.
func verifyCAUTHIdentity(peerIP, assertedIP, hostname string) error {
	if assertedIP != peerIP {
		return errcode.New(errcode.IdentityIPMismatch, "asserted IP does not match the connecting socket", nil)
	}
	if hostname == "" || strings.EqualFold(hostname, "skipident") {
		return errcode.New(errcode.IdentityReverseDNSMismatch, "asserted hostname was empty or withheld", nil)
	}
	addrs, err := lookupHost(hostname)
	if err != nil {
		return errcode.New(errcode.IdentityReverseDNSMismatch, "asserted hostname lookup failed", err)
	}
	for _, a := range addrs {
		if a == peerIP {
			return nil
		}
	}
	return errcode.New(errcode.IdentityReverseDNSMismatch, "asserted hostname does not resolve to the connecting socket's address", nil)
}

func (d *dispatcher) handleSAUTH(c *conn.Connection, req request) error {
	if err := d.col.Legacy.Authenticate(c, d.col.Pinning, d.col.Trust, d.col.ServerKey, req.raw); err != nil {
		return err
	}
	return d.reply(c, []byte("OK"))
}

func (d *dispatcher) handleStartTLS(c *conn.Connection) error {
	if d.col.TLSConfig == nil {
		return errcode.New(errcode.InternalInvariant, "no TLS context configured", nil)
	}
	if err := d.reply(c, []byte("OK: switching to TLS")); err != nil {
		return err
	}

	tlsConn := tls.Server(c.RawConn(), d.col.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		return errcode.New(errcode.TransportHandshake, "STARTTLS handshake", err)
	}
	c.UpgradeToTLS(tlsConn)

	return d.col.TLSAuth.Authenticate(c, d.col.Pinning, d.col.Trust)
}

func (d *dispatcher) handleSynch(c *conn.Connection, req request) error {
	if len(req.args) < 1 {
		return errcode.New(errcode.ProtocolMalformed, "SYNCH requires a path", nil)
	}
	path := req.args[len(req.args)-1]
	fi, err := os.Stat(path)
	if err != nil {
		return d.replyErr(c, errcode.New(errcode.ResourceNotFound, "stat failed", err))
	}
	return d.reply(c, []byte(fmt.Sprintf("%d", fi.ModTime().Unix())))
}

func (d *dispatcher) handleGet(c *conn.Connection, req request) error {
	if len(req.args) < 2 {
		return errcode.New(errcode.ProtocolMalformed, "GET requires size and path", nil)
	}
	size, err := strconv.Atoi(req.args[0])
	if err != nil || size <= 0 {
		return d.replyErr(c, errcode.New(errcode.ProtocolMalformed, "GET size must be a positive integer", nil))
	}
	path := req.args[1]

	if size > maxBlockSize {
		return d.replyErr(c, errcode.New(errcode.ProtocolMalformed, "GET size exceeds the maximum transfer block", nil))
	}
	blockSize := defaultBlockSize
	if size < blockSize {
		blockSize = size
	}

	if !filepath.IsAbs(path) {
		return d.replyErr(c, errcode.New(errcode.ResourceNotAbsolute, "path must be absolute", nil))
	}

	dec := d.col.PathACL.Evaluate(identityOf(c), path, nil, isEncryptedTransport(c))
	if !dec.Grant {
		return d.replyErr(c, errcode.New(errcode.AuthzNoAdmitRule, "no admit rule grants this path", nil))
	}

	fi, err := os.Stat(path)
	if err != nil {
		return d.replyErr(c, errcode.New(errcode.ResourceStatFailed, "stat failed", err))
	}
	if !transferAllowed(fi, dec.MapRoot) {
		return d.replyErr(c, errcode.New(errcode.AuthzNoAdmitRule, "transfer rights refused", nil))
	}

	f, err := os.Open(path)
	if err != nil {
		return d.replyErr(c, errcode.New(errcode.ResourceNotFound, "open failed", err))
	}
	defer f.Close()

	every := restatSmallEvery
	if fi.Size() > largeFileCutoff {
		every = restatLargeEvery
	}

	secure := req.verb == VerbSGET
	buf := make([]byte, blockSize)
	blocks := 0
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			flag := wire.More
			if readErr != nil {
				flag = wire.Done
			}
			payload := buf[:n]
			if secure {
				payload, err = cryptosvc.Seal(cryptosvc.CipherTag(c.CipherTag), c.SessionKey, payload, nil)
				if err != nil {
					return err
				}
			}
			if err := wire.WriteFrame(c.Transport, wire.Frame{Flag: flag, Payload: payload}); err != nil {
				return err
			}
			blocks++
			if blocks%every == 0 {
				if cur, statErr := os.Stat(path); statErr == nil && cur.Size() != fi.Size() {
					return wire.WriteFrame(c.Transport, wire.Frame{Flag: wire.Done, Payload: []byte(sourceChangedMessage)})
				}
			}
		}
		if readErr != nil {
			break
		}
	}
	return nil
}

func (d *dispatcher) handleOpenDir(c *conn.Connection, req request) error {
	if len(req.args) < 1 {
		return errcode.New(errcode.ProtocolMalformed, "OPENDIR requires a path", nil)
	}
	path := req.args[0]
	if !filepath.IsAbs(path) {
		return d.replyErr(c, errcode.New(errcode.ResourceNotAbsolute, "path must be absolute", nil))
	}

	dec := d.col.PathACL.Evaluate(identityOf(c), path, nil, isEncryptedTransport(c))
	if !dec.Grant {
		return d.replyErr(c, errcode.New(errcode.AuthzNoAdmitRule, "no admit rule grants this path", nil))
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return d.replyErr(c, errcode.New(errcode.ResourceNotFound, "readdir failed", err))
	}

	var buf []byte
	for _, e := range entries {
		buf = append(buf, e.Name()...)
		buf = append(buf, 0)
	}
	buf = append(buf, 0, 0) // sentinel terminator

	if req.verb == VerbSOpenDir {
		sealed, err := cryptosvc.Seal(cryptosvc.CipherTag(c.CipherTag), c.SessionKey, buf, nil)
		if err != nil {
			return err
		}
		buf = sealed
	}
	return d.reply(c, buf)
}

func (d *dispatcher) handleMD5(c *conn.Connection, req request) error {
	if len(req.args) < 2 {
		return errcode.New(errcode.ProtocolMalformed, "MD5 requires a path and a digest", nil)
	}
	path, clientDigest := req.args[0], req.args[1]

	dec := d.col.PathACL.Evaluate(identityOf(c), path, nil, isEncryptedTransport(c))
	if !dec.Grant {
		return d.replyErr(c, errcode.New(errcode.AuthzNoAdmitRule, "no admit rule grants this path", nil))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return d.replyErr(c, errcode.New(errcode.ResourceNotFound, "read failed", err))
	}

	reply := "not equal"
	if cryptosvc.DigestsEqual(clientDigest, content) {
		reply = "equal"
	}
	return d.reply(c, []byte(reply))
}

func (d *dispatcher) handleVar(c *conn.Connection, req request) error {
	if len(req.args) < 1 {
		return errcode.New(errcode.ProtocolMalformed, "VAR requires a name", nil)
	}
	name := req.args[0]

	dec := d.col.VarACL.Evaluate(identityOf(c), name, nil, isEncryptedTransport(c))
	if !dec.Grant {
		return d.replyErr(c, errcode.New(errcode.AuthzNoAdmitRule, "no admit rule grants this variable", nil))
	}

	value, ok := d.col.Vars.Lookup(name)
	if !ok {
		return d.replyErr(c, errcode.New(errcode.ResourceNotFound, "unknown variable", nil))
	}
	return d.reply(c, []byte(value))
}

func (d *dispatcher) handleContext(c *conn.Connection, req request) error {
	if len(req.args) < 1 {
		return errcode.New(errcode.ProtocolMalformed, "CONTEXT requires a regex", nil)
	}
	pattern := req.args[0]

	names, err := d.col.Contexts.MatchAndPurge(pattern)
	if err != nil {
		return d.replyErr(c, err)
	}

	filtered := make([]string, 0, len(names))
	for _, n := range names {
		dec := d.col.VarACL.Evaluate(identityOf(c), n, nil, isEncryptedTransport(c))
		if dec.Grant {
			filtered = append(filtered, n)
		}
	}
	return d.reply(c, []byte(strings.Join(filtered, " ")))
}

func (d *dispatcher) handleQuery(c *conn.Connection, req request) error {
	if len(req.args) < 1 {
		return errcode.New(errcode.ProtocolMalformed, "QUERY requires a name", nil)
	}
	if d.col.Queries == nil {
		return d.replyErr(c, errcode.New(errcode.ResourceNotFound, "no query collaborator configured", nil))
	}
	result, err := d.col.Queries.Query(req.args[0])
	if err != nil {
		return d.replyErr(c, err)
	}
	return d.reply(c, []byte(result))
}

// handleExec runs the configured run-command (spec.md §3 `cf_run_command`),
// not a path named by the request: EXEC's only argument is an optional
// `--define class1,class2` proposing classes for the run, which Role
// authorization must grant before the command ever starts. Per spec.md
// §8 scenario 1, the connection closes after EXEC runs, win or lose, so a
// successful run still returns a connection-tearing error to end the
// dispatch loop once the reply is flushed.
func (d *dispatcher) handleExec(c *conn.Connection, req request) error {
	path := d.col.Runner.Command()
	if path == "" {
		return errcode.New(errcode.InternalInvariant, "no run command configured", nil)
	}

	dec := d.col.PathACL.Evaluate(identityOf(c), path, nil, isEncryptedTransport(c))
	if !dec.Grant {
		return d.replyErr(c, errcode.New(errcode.AuthzNoAdmitRule, "no admit rule grants the run command", nil))
	}

	classes := parseDefineClasses(req.args)
	if len(classes) > 0 && !d.col.Roles.Authorize(identityOf(c), classes) {
		return d.replyErr(c, errcode.New(errcode.AuthzRoleNotPermitted, "not authorized to activate these classes/roles on host", nil))
	}

	if err := d.col.Executor.Run(path, classes); err != nil {
		return d.replyErr(c, errcode.New(errcode.InternalInvariant, "run command failed", err))
	}

	if err := d.reply(c, []byte("OK: command executed")); err != nil {
		return err
	}
	return errcode.New(errcode.TransportClosed, "EXEC closes the connection after running", nil)
}

// parseDefineClasses extracts the comma-separated class list following a
// "--define" token in EXEC's arguments, or nil if none was given.
func parseDefineClasses(args []string) []string {
	for i, a := range args {
		if a == "--define" && i+1 < len(args) {
			return strings.Split(args[i+1], ",")
		}
	}
	return nil
}

func (d *dispatcher) handleSCallback(c *conn.Connection, req request) error {
	if err := d.col.Calls.Enqueue(c.IP, c.Hostname); err != nil {
		return d.replyErr(c, err)
	}
	return d.reply(c, []byte("OK: callback queued"))
}

// replyErr sends a BAD: reply for a request-scoped failure. Per
// errcode.Code.Tears, Protocol, Authorization and Resource kind errors are
// request-recoverable: the connection stays open for the next request. Anything
// else propagates to the caller, which tears the connection down.
func (d *dispatcher) replyErr(c *conn.Connection, err error) error {
	d.refuse(c, err)
	if ce, ok := err.(errcode.Error); ok && !ce.Code().Tears() {
		return nil
	}
	return err
}

func identityOf(c *conn.Connection) acl.Identity {
	return acl.Identity{IP: c.IP, Hostname: c.Hostname, Username: c.Username, RSAAuth: c.RSAAuth, Trust: c.Trust}
}

func transferAllowed(fi os.FileInfo, mapRoot bool) bool {
	if mapRoot {
		return true
	}
	if fi.Mode().Perm()&0o004 != 0 {
		return true
	}
	return ownerMatches(fi)
}
