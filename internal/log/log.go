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

// Package log is a thin structured-logging adapter wired directly onto
// github.com/sirupsen/logrus, in the calling convention
// github.com/nabbar/golib/logger uses (Debug/Info/Warning/Error with a
// message, an optional structured payload, and format args) without
// pulling in the teacher's wider multi-output hierarchy for a single
// daemon (spec.md §10.1).
package log

import (
	"github.com/sirupsen/logrus"
)

// Logger is the calling convention every component in this module logs
// through.
type Logger interface {
	Debug(message string, data interface{}, args ...interface{})
	Info(message string, data interface{}, args ...interface{})
	Warning(message string, data interface{}, args ...interface{})
	Error(message string, data interface{}, args ...interface{})
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a Logger backed by a logrus.Logger at the given level.
func New(level logrus.Level) Logger {
	l := logrus.New()
	l.SetLevel(level)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) log(level logrus.Level, message string, data interface{}, args ...interface{}) {
	e := l.entry
	if data != nil {
		e = e.WithField("data", data)
	}
	e.Logf(level, message, args...)
}

func (l *logrusLogger) Debug(message string, data interface{}, args ...interface{}) {
	l.log(logrus.DebugLevel, message, data, args...)
}

func (l *logrusLogger) Info(message string, data interface{}, args ...interface{}) {
	l.log(logrus.InfoLevel, message, data, args...)
}

func (l *logrusLogger) Warning(message string, data interface{}, args ...interface{}) {
	l.log(logrus.WarnLevel, message, data, args...)
}

func (l *logrusLogger) Error(message string, data interface{}, args ...interface{}) {
	l.log(logrus.ErrorLevel, message, data, args...)
}

// Refusal logs an authorization failure with the verbatim prefix the
// original daemon uses, carrying the connecting host/user/ip as the
// structured payload (spec.md §7, SPEC_FULL.md §10.1).
func Refusal(l Logger, reason string, host, user, ip string) {
	l.Info("REFUSAL of request from connecting host", map[string]string{
		"reason": reason,
		"host":   host,
		"user":   user,
		"ip":     ip,
	})
}
