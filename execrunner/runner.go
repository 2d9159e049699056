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

// Package execrunner supervises the single, configured invocation EXEC
// triggers (spec.md §4.8, §4.9): the run-command named by ServerState's
// `cf_run_command`, with the classes proposed by EXEC's --define argument
// passed through once Role authorization has already granted them.
package execrunner

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/jimis/cfserverd/errcode"
)

// Runner implements protocol.Executor with os/exec.CommandContext. It is a
// thin, security-sensitive wrapper: no shell is involved (CommandContext
// execs path directly), and the classes argument is passed as a single
// --define value, never interpolated into a shell string.
type Runner struct {
	timeout time.Duration
}

// New returns a Runner that kills the run-command if it hasn't exited
// within timeout. A non-positive timeout means no deadline is imposed.
func New(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout}
}

// Run execs path with classes (if any) passed as "--define a,b,c", waits
// for it to exit, and returns its combined output wrapped in an error on
// nonzero exit or launch failure.
func (r *Runner) Run(path string, classes []string) error {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var args []string
	if len(classes) > 0 {
		args = append(args, "--define", strings.Join(classes, ","))
	}

	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errcode.Newf(errcode.InternalInvariant, err, "run-command failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}
