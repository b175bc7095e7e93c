// Package notify delivers operator-facing alerts. Delivery is strictly
// best-effort: a sink never returns an error to the caller, because a failed
// alert must never abort a trading cycle.
package notify

import (
	"log"
	"os"
)

// Sink receives alert messages.
type Sink interface {
	Alert(subject, body string)
}

// LogSink writes alerts to the process log. It is the fallback when no
// delivery channel is configured.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a log-backed sink. A nil logger falls back to stderr.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.New(os.Stderr, "alert: ", log.LstdFlags)
	}
	return &LogSink{logger: logger}
}

// Alert implements Sink.
func (s *LogSink) Alert(subject, body string) {
	s.logger.Printf("ALERT: %s\n%s", subject, body)
}
