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

// Command cfserverd is the connection-handling daemon: it binds the listen
// socket, loads the daemon's startup settings and long-term key pair, and
// serves requests until a termination signal arrives (spec.md §1, §6).
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jimis/cfserverd/authsm"
	"github.com/jimis/cfserverd/callback"
	"github.com/jimis/cfserverd/config"
	"github.com/jimis/cfserverd/cryptosvc"
	"github.com/jimis/cfserverd/execrunner"
	intlog "github.com/jimis/cfserverd/internal/log"
	"github.com/jimis/cfserverd/internal/storeadapter"
	"github.com/jimis/cfserverd/listener"
	"github.com/jimis/cfserverd/metrics"
	"github.com/jimis/cfserverd/protocol"
	"github.com/jimis/cfserverd/state"
)

var (
	flagConfigFile string
	flagKeyFile    string
	flagStoreDir   string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cfserverd",
		Short: "Connection-handling daemon for policy distribution and callback collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&flagConfigFile, "config", "/etc/cfserverd/cfserverd.yaml", "path to the daemon's startup settings file")
	cmd.Flags().StringVar(&flagKeyFile, "key", "/etc/cfserverd/server.key", "path to the long-term RSA private key")
	cmd.Flags().StringVar(&flagStoreDir, "store-dir", "/var/lib/cfserverd", "directory for the nutsdb-backed pinning/context store")

	return cmd
}

func run(ctx context.Context) error {
	log := intlog.New(logrus.InfoLevel)

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Error("failed to load daemon configuration", err.Error())
		return err
	}

	keyPair, err := cryptosvc.LoadKeyPair(flagKeyFile)
	if err != nil {
		log.Error("failed to load long-term key pair", err.Error())
		return err
	}

	store, err := storeadapter.Open(flagStoreDir)
	if err != nil {
		log.Error("failed to open persistent store", err.Error())
		return err
	}
	defer store.Close()

	var tlsConfig *tls.Config
	if cfg.TLSCertFile != "" {
		tlsConfig, err = cryptosvc.BuildTLSConfig(cryptosvc.TLSOptions{
			KeyFile:           flagKeyFile,
			CertFile:          cfg.TLSCertFile,
			TrustedCAFiles:    cfg.TLSTrustedCAFiles,
			RequireClientCert: cfg.TLSRequireClientCert,
		})
		if err != nil {
			log.Error("failed to build TLS configuration", err.Error())
			return err
		}
	}

	st := state.Build(state.Config{
		CipherPreference: cfg.CipherPref,
	})
	mgr := state.NewManager(st, cfg.MaxWorkers, cfg.ApoptosisAt)

	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry)

	callbackQueue := callback.NewQueue(64)
	callbackPool := callback.NewPool(32, 5*time.Minute)
	runner := execrunner.New(0)

	stop := make(chan struct{})
	go callbackPool.Janitor(stop, time.Minute)
	go (&callback.Worker{
		Queue: callbackQueue,
		Pool:  callbackPool,
		Port:  callbackPort(cfg.ListenAddress),
		Dial:  (&net.Dialer{Timeout: 10 * time.Second}).Dial,
		Handle: func(job callback.Job, conn net.Conn) error {
			log.Info("callback connection ready", map[string]string{"ip": job.IP, "hostname": job.Hostname})
			return nil
		},
	}).Run(stop)

	col := protocol.Collaborators{
		PathACL:  mgr.PathACL(),
		VarACL:   mgr.VarACL(),
		Roles:    mgr.Roles(),
		Vars:     mgr.Vars(),
		Contexts: store,
		Calls:    callbackQueue,
		Users:    mgr.Users(),
		Runner:   mgr.Runner(),
		Executor: runner,

		ServerKey: keyPair,
		Pinning:   store,
		Trust:     mgr.Trust(),
		Legacy:    authsm.NewLegacyAuthenticator(),
		TLSAuth:   authsm.NewTLSAuthenticator(),
		TLSConfig: tlsConfig,
		Logger:    log,
	}
	dispatch := protocol.New(col)

	ln := listener.New(cfg.ListenAddress, mgr, dispatch)

	_, err = config.WatchReload(flagConfigFile, func(reloaded config.Daemon) {
		_, _ = mgr.Reload(func(previous *state.ServerState) (*state.ServerState, error) {
			next := *previous
			next.CipherPreference = reloaded.CipherPref
			return &next, nil
		})
	})
	if err != nil {
		log.Warning("failed to watch configuration file for changes", err.Error())
	}

	log.Info("cfserverd starting", map[string]string{"listen": cfg.ListenAddress})
	serveErr := ln.Serve(ctx)
	close(stop)
	return serveErr
}

// callbackPort extracts the port the daemon itself listens on, re-used as
// the port SCALLBACK's reverse-connect jobs dial back to, since a peer's
// cfserverd listens on the same configured port.
func callbackPort(listenAddress string) string {
	_, port, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return "5308"
	}
	return port
}
