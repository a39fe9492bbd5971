// Package diagnostics records model replies that produced no facts so the
// prompt can be tuned against real traffic.
package diagnostics

import (
	"ai_mem/backend/go/internal/config"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const separator = "================================================================================"

// Sink receives replies that yielded no facts. Implementations must not
// block the caller.
type Sink interface {
	LogEmptyFacts(message, response string)
}

// Noop discards everything.
type Noop struct{}

// LogEmptyFacts implements Sink.
func (Noop) LogEmptyFacts(string, string) {}

type record struct {
	message  string
	response string
}

// EmptyFactsLogger writes records from a single goroutine. A full queue
// drops the record instead of blocking.
type EmptyFactsLogger struct {
	out     *logrus.Logger
	closer  io.Closer
	queue   chan record
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewEmptyFactsLogger opens the rotating file described by cfg.
func NewEmptyFactsLogger(cfg config.EmptyFactsConfig) (*EmptyFactsLogger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", cfg.Dir, err)
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, cfg.File),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	l := NewWithWriter(file, cfg.QueueSize)
	l.closer = file
	return l, nil
}

// NewWithWriter writes records to w. queueSize below 1 means 1.
func NewWithWriter(w io.Writer, queueSize int) *EmptyFactsLogger {
	if queueSize < 1 {
		queueSize = 1
	}
	out := logrus.New()
	out.SetOutput(w)
	out.SetLevel(logrus.InfoLevel)
	out.SetFormatter(lineFormatter{})

	l := &EmptyFactsLogger{
		out:   out,
		queue: make(chan record, queueSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// LogEmptyFacts queues a record and returns immediately.
func (l *EmptyFactsLogger) LogEmptyFacts(message, response string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.queue <- record{message: message, response: response}:
	default:
		l.dropped.Add(1)
	}
}

// Dropped returns how many records were discarded.
func (l *EmptyFactsLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Close writes out queued records and closes the file.
func (l *EmptyFactsLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *EmptyFactsLogger) run() {
	defer close(l.done)
	for r := range l.queue {
		l.out.Info(separator)
		l.out.Info("Original Message: " + r.message)
		l.out.Info("LLM Response:\n" + r.response)
		l.out.Info(separator)
		l.out.Info("")
	}
}

// lineFormatter renders "2006-01-02 15:04:05 - message".
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(e.Time.Format("2006-01-02 15:04:05"))
	sb.WriteString(" - ")
	sb.WriteString(e.Message)
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}
