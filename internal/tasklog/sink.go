package tasklog

import (
	"fmt"
	"os"
	"sync"

	"github.com/taskhub/taskhub/internal/types"
)

// Sink receives every LogRecord appended to the pipeline.
type Sink interface {
	Write(rec types.LogRecord) error
}

// ConsoleSink formats records to stdout.
type ConsoleSink struct {
	mu  sync.Mutex
	out *os.File
}

// NewConsoleSink returns a Sink writing to os.Stdout.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout}
}

// Write implements Sink.
func (s *ConsoleSink) Write(rec types.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, FormatLine(rec))
	return err
}
