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

package wire_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/jimis/cfserverd/wire"
)

// memTransport adapts a bytes.Buffer pair to wire.Transport for tests that
// don't need a real socket.
type memTransport struct {
	r *bytes.Buffer
	w *bytes.Buffer
}

func (m *memTransport) Read(p []byte) (int, error)  { return m.r.Read(p) }
func (m *memTransport) Write(p []byte) (int, error) { return m.w.Write(p) }
func (m *memTransport) SetReadDeadline(time.Time) error {
	return nil
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := &memTransport{r: buf, w: buf}

	want := []byte("CAUTH 10.0.0.7 host.example root")
	if err := wire.WriteFrame(tr, wire.Frame{Flag: wire.Done, Payload: want}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := wire.ReadFrame(tr, time.Second)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Flag != wire.Done {
		t.Fatalf("flag = %q, want Done", got.Flag)
	}
	if !bytes.Equal(got.Payload, want) {
		t.Fatalf("payload = %q, want %q", got.Payload, want)
	}
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := &memTransport{r: buf, w: buf}

	oversized := wire.Frame{Flag: wire.Done, Payload: make([]byte, 1)}
	if err := wire.WriteFrame(tr, oversized); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// Corrupt the just-written length field to claim more than MaxPayload.
	raw := buf.Bytes()
	raw[0], raw[1], raw[2], raw[3] = 0xFF, 0xFF, 0xFF, 0xFF
	buf2 := bytes.NewBuffer(raw)
	tr2 := &memTransport{r: buf2, w: &bytes.Buffer{}}

	if _, err := wire.ReadFrame(tr2, time.Second); err == nil {
		t.Fatal("expected ReadFrame to reject an oversized declared length")
	}
}

func TestWriteFrameRejectsOversizePayload(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := &memTransport{r: buf, w: buf}

	big := make([]byte, wire.MaxPayload+1)
	if err := wire.WriteFrame(tr, wire.Frame{Flag: wire.Done, Payload: big}); err == nil {
		t.Fatal("expected WriteFrame to reject a payload bigger than MaxPayload")
	}
}

func TestMultiFrameContinuation(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := &memTransport{r: buf, w: buf}

	frames := []wire.Frame{
		{Flag: wire.More, Payload: []byte("part-1")},
		{Flag: wire.More, Payload: []byte("part-2")},
		{Flag: wire.Done, Payload: []byte("part-3")},
	}
	for _, f := range frames {
		if err := wire.WriteFrame(tr, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	for i, want := range frames {
		got, err := wire.ReadFrame(tr, time.Second)
		if err != nil {
			t.Fatalf("ReadFrame[%d]: %v", i, err)
		}
		if got.Flag != want.Flag || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("frame[%d] = %+v, want %+v", i, got, want)
		}
	}
}
