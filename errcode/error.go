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

package errcode

import "fmt"

// Error is a Code-classified error with an optional parent, the same
// parent-chaining idiom the teacher's errors package uses for error
// hierarchy, pared down to what the connection engine needs.
type Error interface {
	error
	Code() Code
	Kind() Kind
	Parent() error
	Unwrap() error
}

type coded struct {
	code Code
	msg  string
	par  error
}

func (e *coded) Error() string {
	if e.par != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.par.Error())
	}
	return e.msg
}

func (e *coded) Code() Code    { return e.code }
func (e *coded) Kind() Kind    { return KindOf(e.code) }
func (e *coded) Parent() error { return e.par }
func (e *coded) Unwrap() error { return e.par }

// New returns an Error carrying the given Code and message, optionally
// wrapping a parent error.
func New(code Code, msg string, parent error) Error {
	return &coded{code: code, msg: msg, par: parent}
}

// Newf is New with fmt.Sprintf-style formatting of msg.
func Newf(code Code, parent error, format string, args ...interface{}) Error {
	return &coded{code: code, msg: fmt.Sprintf(format, args...), par: parent}
}

// Is reports whether err carries the given Code, unwrapping through any
// parent chain built with New/Newf.
func Is(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(Error); ok {
			if e.Code() == code {
				return true
			}
			err = e.Unwrap()
			continue
		}
		return false
	}
	return false
}
