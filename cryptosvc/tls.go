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

package cryptosvc

import (
	"crypto/tls"

	"github.com/nabbar/golib/certificates"
	tlsaut "github.com/nabbar/golib/certificates/auth"
	tlsvrs "github.com/nabbar/golib/certificates/tlsversion"

	"github.com/jimis/cfserverd/errcode"
)

// TLSOptions configures the TLS protocol variant's listening context
// (spec.md §4.2, §6). The post-handshake pinning check is layered on top of
// whatever *tls.Config this produces; it is not itself a TLS option.
type TLSOptions struct {
	KeyFile        string
	CertFile       string
	TrustedCAFiles []string
	RequireClientCert bool
}

// BuildTLSConfig loads the TLS identity from the certificate and key files
// named by CertFile and KeyFile and assembles a *tls.Config through the
// nabbar/golib certificates package. It does not generate a certificate:
// no self-signed identity is built from the long-term key pair, so
// CertFile must already hold a certificate for KeyFile's key.
func BuildTLSConfig(opt TLSOptions) (*tls.Config, error) {
	cfg := certificates.New()
	cfg.SetVersionMin(tlsvrs.VersionTLS12)
	cfg.SetVersionMax(tlsvrs.VersionTLS13)

	if err := cfg.AddCertificatePairFile(opt.KeyFile, opt.CertFile); err != nil {
		return nil, errcode.New(errcode.TransportHandshake, "load TLS certificate pair", err)
	}

	for _, ca := range opt.TrustedCAFiles {
		if err := cfg.AddClientCAFile(ca); err != nil {
			return nil, errcode.New(errcode.TransportHandshake, "load trusted CA", err)
		}
	}

	// Client certificates are requested but never the sole trust decision:
	// spec.md §4.2 pins the peer's public key digest after the handshake
	// completes regardless of whether the certificate chain validates, so
	// ask for the cert without forcing chain verification to succeed.
	if opt.RequireClientCert {
		cfg.SetClientAuth(tlsaut.RequireAnyClientCert)
	} else {
		cfg.SetClientAuth(tlsaut.RequestClientCert)
	}

	return cfg.TLS(""), nil
}
