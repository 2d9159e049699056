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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jimis/cfserverd/acl"
	"github.com/jimis/cfserverd/conn"
	"github.com/jimis/cfserverd/protocol"
	"github.com/jimis/cfserverd/wire"
)

func TestProtocolSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Protocol Dispatcher Suite")
}

type fakeRunCommand string

func (f fakeRunCommand) Command() string { return string(f) }

type fakeExecutor struct {
	ran     bool
	path    string
	classes []string
	err     error
}

func (f *fakeExecutor) Run(path string, classes []string) error {
	f.ran = true
	f.path = path
	f.classes = classes
	return f.err
}

type fakeQueryRunner struct{ result string }

func (f fakeQueryRunner) Query(name string) (string, error) { return f.result, nil }

type fakeCallbackQueue struct{ err error }

func (f fakeCallbackQueue) Enqueue(ip, hostname string) error { return f.err }

func roundTrip(d protocol.Dispatcher, c *conn.Connection, client net.Conn, requestLine string) (string, error) {
	errCh := make(chan error, 1)
	go func() { errCh <- d.Dispatch(c) }()

	if err := wire.WriteFrame(pipeTransport{client}, wire.Frame{Flag: wire.Done, Payload: []byte(requestLine)}); err != nil {
		return "", err
	}
	reply, err := wire.ReadFrame(pipeTransport{client}, time.Second)
	if err != nil {
		return "", err
	}
	return string(reply.Payload), <-errCh
}

var _ = Describe("Dispatcher", func() {
	var (
		serverSide, clientSide net.Conn
		c                      *conn.Connection
	)

	BeforeEach(func() {
		serverSide, clientSide = net.Pipe()
		c = conn.New(serverSide, "10.0.0.1")
		c.IDVerified = true
	})

	AfterEach(func() {
		clientSide.Close()
	})

	It("grants EXEC and tears the connection down afterward", func() {
		c.RSAAuth = true
		executor := &fakeExecutor{}
		d := protocol.New(protocol.Collaborators{
			PathACL:  acl.NewEvaluator(acl.KindPathPrefix, []acl.Rule{{Kind: acl.KindPathPrefix, Pattern: "/var/cfengine/run", AllowAddrs: []string{"10.0.0.1"}}}, nil),
			VarACL:   acl.NewEvaluator(acl.KindLiteral, nil, nil),
			Roles:    acl.NewRoleAuthorizer([]acl.Rule{{Kind: acl.KindClassPattern, Pattern: "webserver", AllowAddrs: []string{"10.0.0.1"}}}),
			Runner:   fakeRunCommand("/var/cfengine/run"),
			Executor: executor,
		})

		reply, dispatchErr := roundTrip(d, c, clientSide, "EXEC --define webserver")
		Expect(reply).To(Equal("OK: command executed"))
		Expect(dispatchErr).To(HaveOccurred())
		Expect(executor.ran).To(BeTrue())
		Expect(executor.classes).To(Equal([]string{"webserver"}))
	})

	It("refuses EXEC when the run command has no admit rule", func() {
		c.RSAAuth = true
		d := protocol.New(protocol.Collaborators{
			PathACL: acl.NewEvaluator(acl.KindPathPrefix, nil, nil),
			VarACL:  acl.NewEvaluator(acl.KindLiteral, nil, nil),
			Roles:   acl.NewRoleAuthorizer(nil),
			Runner:  fakeRunCommand("/var/cfengine/run"),
		})

		reply, _ := roundTrip(d, c, clientSide, "EXEC")
		Expect(reply).To(HavePrefix("BAD:"))
		Expect(reply).ToNot(ContainSubstring("REFUSAL"))
	})

	It("answers QUERY from the configured QueryRunner", func() {
		d := protocol.New(protocol.Collaborators{
			PathACL: acl.NewEvaluator(acl.KindPathPrefix, nil, nil),
			VarACL:  acl.NewEvaluator(acl.KindLiteral, nil, nil),
			Roles:   acl.NewRoleAuthorizer(nil),
			Queries: fakeQueryRunner{result: "uptime: 3 days"},
		})

		reply, dispatchErr := roundTrip(d, c, clientSide, "QUERY uptime")
		Expect(dispatchErr).ToNot(HaveOccurred())
		Expect(reply).To(Equal("uptime: 3 days"))
	})

	It("queues SCALLBACK and keeps the connection open", func() {
		d := protocol.New(protocol.Collaborators{
			PathACL: acl.NewEvaluator(acl.KindPathPrefix, nil, nil),
			VarACL:  acl.NewEvaluator(acl.KindLiteral, nil, nil),
			Roles:   acl.NewRoleAuthorizer(nil),
			Calls:   fakeCallbackQueue{},
		})

		reply, dispatchErr := roundTrip(d, c, clientSide, "SCALLBACK")
		Expect(dispatchErr).ToNot(HaveOccurred())
		Expect(reply).To(Equal("OK: callback queued"))
	})
})

var _ = Describe("CAUTH", func() {
	var (
		serverSide, clientSide net.Conn
		c                      *conn.Connection
		d                      protocol.Dispatcher
	)

	BeforeEach(func() {
		serverSide, clientSide = net.Pipe()
		c = conn.New(serverSide, "10.0.0.7")
		d = protocol.New(protocol.Collaborators{
			PathACL: acl.NewEvaluator(acl.KindPathPrefix, nil, nil),
			VarACL:  acl.NewEvaluator(acl.KindLiteral, nil, nil),
			Roles:   acl.NewRoleAuthorizer(nil),
		})
	})

	AfterEach(func() {
		clientSide.Close()
	})

	It("refuses and leaves id_verified false when the asserted IP does not match the socket", func() {
		reply, _ := roundTrip(d, c, clientSide, "CAUTH 10.0.0.99 host.example root")
		Expect(reply).To(HavePrefix("BAD:"))
		Expect(c.IDVerified).To(BeFalse())
	})

	It("accepts and sets id_verified when the peer is on skipverify", func() {
		d = protocol.New(protocol.Collaborators{
			PathACL: acl.NewEvaluator(acl.KindPathPrefix, nil, nil),
			VarACL:  acl.NewEvaluator(acl.KindLiteral, nil, nil),
			Roles:   acl.NewRoleAuthorizer(nil),
			Trust:   fakeTrustPolicy{skipVerify: true},
		})

		reply, dispatchErr := roundTrip(d, c, clientSide, "CAUTH 10.0.0.99 unverifiable-host root")
		Expect(dispatchErr).ToNot(HaveOccurred())
		Expect(reply).To(Equal("OK"))
		Expect(c.IDVerified).To(BeTrue())
		Expect(c.IP).To(Equal("10.0.0.7"), "the real peer address must never be overwritten by the assertion")
	})
})

type fakeTrustPolicy struct {
	skipVerify bool
}

func (f fakeTrustPolicy) TrustOnFirstUse(string) bool    { return false }
func (f fakeTrustPolicy) SkipIdentityVerify(string) bool { return f.skipVerify }
