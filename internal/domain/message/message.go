// Package message collects user-facing notices, warnings and errors emitted
// while a cart or order operation runs.
package message

import (
	"sync"

	"go.uber.org/zap"
)

// Sink accepts messages for display. Senders never wait on or inspect the
// outcome.
type Sink interface {
	Notice(text string)
	Warning(text string)
	Error(text string)
}

// Level is the severity of a Message.
type Level string

const (
	LevelNotice  Level = "notice"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is a single collected message.
type Message struct {
	Level Level
	Text  string
}

// Collector is a Sink that keeps messages for the current request.
type Collector struct {
	mu   sync.Mutex
	msgs []Message
}

var _ Sink = (*Collector)(nil)

func (c *Collector) Notice(text string)  { c.add(LevelNotice, text) }
func (c *Collector) Warning(text string) { c.add(LevelWarning, text) }
func (c *Collector) Error(text string)   { c.add(LevelError, text) }

func (c *Collector) add(level Level, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, Message{Level: level, Text: text})
}

// Messages returns the collected messages in emission order.
func (c *Collector) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

// Log is a Sink that writes messages to a zap logger. Used by background
// jobs that have no user to show messages to.
type Log struct {
	lg *zap.Logger
}

var _ Sink = Log{}

// NewLog returns a Sink writing to lg.
func NewLog(lg *zap.Logger) Log {
	return Log{lg: lg}
}

func (l Log) Notice(text string)  { l.lg.Info(text) }
func (l Log) Warning(text string) { l.lg.Warn(text) }
func (l Log) Error(text string)   { l.lg.Error(text) }

type discard struct{}

func (discard) Notice(string)  {}
func (discard) Warning(string) {}
func (discard) Error(string)   {}

// Discard drops every message.
var Discard Sink = discard{}
