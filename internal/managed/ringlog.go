// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package managed

import (
	"bytes"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLine is one line of child output.
type LogLine struct {
	At     time.Time `json:"at"`
	Stream string    `json:"stream"`
	Text   string    `json:"text"`
}

// lineRing keeps the most recent lines of child output.
type lineRing struct {
	mu    sync.Mutex
	lines []LogLine
	next  int
	full  bool
}

func newLineRing(size int) *lineRing {
	if size <= 0 {
		size = 500
	}
	return &lineRing{lines: make([]LogLine, size)}
}

func (r *lineRing) add(l LogLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = l
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// tail returns up to n lines, oldest first. n <= 0 returns everything held.
func (r *lineRing) tail(n int) []LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.next
	if r.full {
		count = len(r.lines)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]LogLine, n)
	start := (r.next - n + len(r.lines)) % len(r.lines)
	for i := 0; i < n; i++ {
		out[i] = r.lines[(start+i)%len(r.lines)]
	}
	return out
}

// lineWriter splits child output into lines for the ring and the logger.
type lineWriter struct {
	stream string
	ring   *lineRing
	logger zerolog.Logger
	level  zerolog.Level

	mu  sync.Mutex
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(string(bytes.TrimRight(w.buf[:i], "\r")))
		w.buf = w.buf[i+1:]
	}
	// Bound a single runaway line.
	if len(w.buf) > 64*1024 {
		w.emit(string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// flush emits a trailing partial line.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = w.buf[:0]
	}
}

func (w *lineWriter) emit(text string) {
	if text == "" {
		return
	}
	w.ring.add(LogLine{At: time.Now(), Stream: w.stream, Text: text})
	w.logger.WithLevel(w.level).Str("stream", w.stream).Msg(text)
}
