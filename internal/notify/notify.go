// Package notify carries user-visible messages out of the core components.
package notify

import (
	"log/slog"
	"sync"
)

// Notifier is the toast channel: short messages a user should see.
type Notifier interface {
	Info(msg string)
	Error(msg string, err error)
}

// Log writes notifications to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Notifier backed by logger (slog.Default when nil).
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Info(msg string) {
	l.logger.Info(msg, slog.String("channel", "notify"))
}

func (l *Log) Error(msg string, err error) {
	attrs := []any{slog.String("channel", "notify")}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.Error(msg, attrs...)
}

// Message is a recorded notification.
type Message struct {
	Level string
	Text  string
	Err   error
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Info(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, Message{Level: "info", Text: msg})
	r.mu.Unlock()
}

func (r *Recorder) Error(msg string, err error) {
	r.mu.Lock()
	r.msgs = append(r.msgs, Message{Level: "error", Text: msg, Err: err})
	r.mu.Unlock()
}

// Messages returns a copy of everything recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Errors returns only error-level messages.
func (r *Recorder) Errors() []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Level == "error" {
			out = append(out, m)
		}
	}
	return out
}
