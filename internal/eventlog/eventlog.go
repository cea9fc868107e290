/*
   eventlog - host-facing logging sink for the translation core.

   Copyright (c) 2026, EV6 Core Contributors

   Permission is hereby granted, free of charge, to any person obtaining a copy
   of this software and associated documentation files (the "Software"), to deal
   in the Software without restriction, including without limitation the rights
   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
   copies of the Software, and to permit persons to whom the Software is
   furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
   SOFTWARE.
*/

// Package eventlog defines the EventLog interface spec.md §6 names as a
// host-facing collaborator, plus a default log/slog-backed implementation
// and an alternate zap-backed sink. The translation and SPAM packages never
// import log/slog or zap directly; they depend only on EventLog, so tests
// can inject NullSink or a recording fake.
package eventlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors spec.md §6's write(level, cpu_id, message) levels.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case Debug:
		return slog.LevelDebug
	case Info:
		return slog.LevelInfo
	case Warn:
		return slog.LevelWarn
	default: // Error, Fatal
		return slog.LevelError
	}
}

// EventLog is the only logging surface internal/xlate, internal/spam and
// internal/ipr are allowed to depend on.
type EventLog interface {
	Write(level Level, cpuID int, msg string, args ...any)
}

// handler adapts slog.Handler the same way the teacher's LogHandler does:
// a mutex-guarded writer, a debug-gated stderr echo, and flat text
// formatting rather than slog's default key=value attr rendering.
type handler struct {
	out   io.Writer
	h     slog.Handler
	mu    *sync.Mutex
	debug bool
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{out: h.out, h: h.h.WithAttrs(attrs), mu: h.mu, debug: h.debug}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{out: h.out, h: h.h.WithGroup(name), mu: h.mu, debug: h.debug}
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	parts := []string{r.Time.Format("2006/01/02 15:04:05"), r.Level.String() + ":", r.Message}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, a.Value.String())
		return true
	})
	line := []byte(strings.Join(parts, " ") + "\n")

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write(line)
	}
	if h.debug || r.Level >= slog.LevelWarn {
		_, err = os.Stderr.Write(line)
	}
	return err
}

// SlogSink is the default EventLog, backed by log/slog with the flat
// text-line handler above.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink writes to out, echoing WARN-and-above (or everything, if
// debug is true) to stderr as well.
func NewSlogSink(out io.Writer, debug bool) *SlogSink {
	h := &handler{out: out, h: slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}), mu: &sync.Mutex{}, debug: debug}
	return &SlogSink{logger: slog.New(h)}
}

func (s *SlogSink) Write(level Level, cpuID int, msg string, args ...any) {
	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}
	s.logger.Log(context.Background(), level.slogLevel(), formatted, slog.Int("cpu", cpuID))
}

// NullSink discards everything; used in hot-path benchmarks and most unit
// tests that don't assert on log output.
type NullSink struct{}

func (NullSink) Write(Level, int, string, ...any) {}

// ZapSink is the alternate structured sink, for deployments that already
// centralize logs through zap (the rest of the example pack's services use
// zap as their production logger).
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps an existing *zap.Logger.
func NewZapSink(l *zap.Logger) *ZapSink {
	return &ZapSink{logger: l}
}

// NewProductionZapSink builds a sane default JSON zap logger.
func NewProductionZapSink() (*ZapSink, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapSink{logger: l}, nil
}

func (z *ZapSink) Write(level Level, cpuID int, msg string, args ...any) {
	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}
	fields := []zap.Field{zap.Int("cpu", cpuID)}
	switch level {
	case Debug:
		z.logger.Debug(formatted, fields...)
	case Info:
		z.logger.Info(formatted, fields...)
	case Warn:
		z.logger.Warn(formatted, fields...)
	case Error:
		z.logger.Error(formatted, fields...)
	case Fatal:
		z.logger.Log(zapcore.DPanicLevel, formatted, fields...)
	}
}
