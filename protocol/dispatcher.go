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
	"strings"
	"time"

	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/cryptosvc"
	intlog "github.com/jimis/cfserverd/internal/log"
	"github.com/jimis/cfserverd/wire"
)

const requestTimeout = 60 * time.Second

// dispatcher is the only Dispatcher implementation.
type dispatcher struct {
	col Collaborators
}

// New returns a Dispatcher wired to the given collaborators.
func New(col Collaborators) Dispatcher {
	return &dispatcher{col: col}
}

// request is one parsed, decrypted command: verb plus space-separated
// arguments. For a secure verb, args come from the decrypted plaintext of
// the ciphertext frame payload; the non-secure form's args are everything
// after the verb token.
type request struct {
	verb Verb
	args []string
	// raw is the exact byte sequence following the verb token, before any
	// whitespace splitting. SAUTH's step-1 payload is binary (a flag byte
	// followed by an arbitrary nonce) and must not be tokenized the way
	// every other verb's text arguments are.
	raw []byte
}

func (d *dispatcher) Dispatch(c *conn.Connection) error {
	frame, err := wire.ReadFrame(c.Transport, requestTimeout)
	if err != nil {
		return err
	}

	req, err := d.parseRequest(c, frame.Payload)
	if err != nil {
		return err
	}

	if err := checkPreconditions(c, req.verb, d.col.Users); err != nil {
		d.refuse(c, err)
		return err
	}

	return d.handle(c, req)
}

func (d *dispatcher) parseRequest(c *conn.Connection, payload []byte) (request, error) {
	line := string(payload)
	sp := strings.IndexByte(line, ' ')
	var verbToken, rest string
	if sp < 0 {
		verbToken, rest = line, ""
	} else {
		verbToken, rest = line[:sp], line[sp+1:]
	}
	verb := Verb(verbToken)

	if verb == VerbSAUTH {
		return request{verb: verb, raw: []byte(rest)}, nil
	}

	if !verb.secure() {
		var args []string
		if rest != "" {
			args = strings.Fields(rest)
		}
		return request{verb: verb, args: args}, nil
	}

	plaintext, err := cryptosvc.Open(c.SessionKey, []byte(rest), nil)
	if err != nil {
		return request{}, err
	}
	return request{verb: verb, args: strings.Fields(string(plaintext))}, nil
}

// refuse writes a "BAD: <reason>" reply and leaves the connection open for
// authorization-kind failures (transport/identity/internal kinds are
// handled by the caller tearing the connection down, per
// errcode.Code.Tears). The "REFUSAL of request from connecting host" line
// is a server-log event only, never the wire payload.
func (d *dispatcher) refuse(c *conn.Connection, cause error) {
	if d.col.Logger != nil {
		intlog.Refusal(d.col.Logger, cause.Error(), c.Hostname, c.Username, c.IP)
	}
	msg := "BAD: " + cause.Error()
	_ = wire.WriteFrame(c.Transport, wire.Frame{Flag: wire.Done, Payload: []byte(msg)})
}

func (d *dispatcher) reply(c *conn.Connection, payload []byte) error {
	return wire.WriteFrame(c.Transport, wire.Frame{Flag: wire.Done, Payload: payload})
}

func isEncryptedTransport(c *conn.Connection) bool {
	return c.Variant == conn.TLS || len(c.SessionKey) > 0
}
