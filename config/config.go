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

// Package config holds the daemon's own startup settings (listen address,
// key paths, cipher preference, timeouts, worker cap, policy file path) —
// not the policy-language settings the ACL evaluator compiles, which are
// out of scope per spec.md §1. Settings are loaded with
// github.com/spf13/viper and watched for change with
// github.com/fsnotify/fsnotify, the way nabbar/golib/config wires the same
// two libraries for component hot-reload (SPEC_FULL.md §10.3).
package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Daemon is the daemon-level settings this module reads at startup and
// again whenever the config file is reloaded.
type Daemon struct {
	ListenAddress string        `mapstructure:"listen_address"`
	KeyPath       string        `mapstructure:"key_path"`
	CipherPref    string        `mapstructure:"cipher_preference"`
	MaxWorkers    int64         `mapstructure:"max_workers"`
	AcceptTimeout time.Duration `mapstructure:"accept_timeout"`
	PolicyFile    string        `mapstructure:"policy_file"`
	ApoptosisAt   int           `mapstructure:"apoptosis_threshold"`

	TLSCertFile       string   `mapstructure:"tls_cert_file"`
	TLSTrustedCAFiles []string `mapstructure:"tls_trusted_ca_files"`
	TLSRequireClientCert bool  `mapstructure:"tls_require_client_cert"`
}

func defaults() Daemon {
	return Daemon{
		ListenAddress: ":5308",
		CipherPref:    "c",
		MaxWorkers:    100,
		AcceptTimeout: 60 * time.Second,
		ApoptosisAt:   5,
	}
}

// Load reads path into a Daemon, applying the values from defaults() for
// any of those keys the file doesn't set.
func Load(path string) (Daemon, error) {
	v := viper.New()
	v.SetConfigFile(path)

	d := defaults()
	v.SetDefault("listen_address", d.ListenAddress)
	v.SetDefault("cipher_preference", d.CipherPref)
	v.SetDefault("max_workers", d.MaxWorkers)
	v.SetDefault("accept_timeout", d.AcceptTimeout)
	v.SetDefault("apoptosis_threshold", d.ApoptosisAt)

	if err := v.ReadInConfig(); err != nil {
		return Daemon{}, err
	}

	var out Daemon
	if err := v.Unmarshal(&out); err != nil {
		return Daemon{}, err
	}
	return out, nil
}

// WatchReload calls onChange with the freshly reloaded Daemon every time
// path is modified on disk, using fsnotify the way
// nabbar/golib/config watches a component's backing file for hot-reload.
// It returns a stop function, but calling it does nothing: the watch stays
// active for the rest of the process's life.
func WatchReload(path string, onChange func(Daemon)) (stop func(), err error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		d, rerr := Load(path)
		if rerr == nil {
			onChange(d)
		}
	})
	v.WatchConfig()

	return func() {}, nil
}
