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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jimis/cfserverd/config"
)

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfserverd.yaml")
	if err := os.WriteFile(path, []byte("listen_address: \"127.0.0.1:5308\"\nmax_workers: 42\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	d, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.ListenAddress != "127.0.0.1:5308" {
		t.Fatalf("ListenAddress = %q", d.ListenAddress)
	}
	if d.MaxWorkers != 42 {
		t.Fatalf("MaxWorkers = %d, want 42", d.MaxWorkers)
	}
	if d.CipherPref != "c" {
		t.Fatalf("CipherPref default = %q, want %q", d.CipherPref, "c")
	}
}
