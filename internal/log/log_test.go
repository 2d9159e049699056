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

package log_test

import (
	"testing"

	"github.com/sirupsen/logrus"

	intlog "github.com/jimis/cfserverd/internal/log"
)

func TestLoggerDoesNotPanicAcrossLevels(t *testing.T) {
	l := intlog.New(logrus.DebugLevel)
	l.Debug("debug message", nil)
	l.Info("info message", map[string]string{"k": "v"})
	l.Warning("warning message", nil, "extra")
	l.Error("error message", 42)
}

func TestRefusalLogsVerbatimPrefix(t *testing.T) {
	l := intlog.New(logrus.InfoLevel)
	intlog.Refusal(l, "no admit rule", "host1", "alice", "10.0.0.5")
}
