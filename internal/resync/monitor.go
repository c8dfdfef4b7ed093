package resync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// attemptStatus is the terminal outcome of one resync attempt.
type attemptStatus string

const (
	statusCompleted attemptStatus = "completed"
	statusCancelled attemptStatus = "cancelled"
	statusErrored   attemptStatus = "errored"
)

// Monitor tracks resync attempts for diagnostics: a stable attempt ID,
// wall-clock duration, and how many retries the attempt took.
type Monitor struct {
	logger *slog.Logger

	mu        sync.Mutex
	attemptID string
	startedAt time.Time
	retries   int
}

func NewMonitor(logger *slog.Logger) *Monitor {
	return &Monitor{logger: logger}
}

// Begin starts tracking a new attempt and returns its ID. A retry of a
// failed attempt keeps the same ID; call Retry instead.
func (m *Monitor) Begin() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attemptID = uuid.NewString()
	m.startedAt = time.Now()
	m.retries = 0

	m.logger.Info("resync attempt started", slog.String("attempt", m.attemptID))
	return m.attemptID
}

// Retry records a retry within the current attempt.
func (m *Monitor) Retry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retries++
	m.logger.Info("resync attempt retried",
		slog.String("attempt", m.attemptID),
		slog.Int("retries", m.retries),
	)
}

// ReportEnd logs the terminal outcome of the current attempt.
func (m *Monitor) ReportEnd(status attemptStatus, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attemptID == "" {
		return
	}

	attrs := []any{
		slog.String("attempt", m.attemptID),
		slog.String("status", string(status)),
		slog.Duration("duration", time.Since(m.startedAt)),
		slog.Int("retries", m.retries),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	m.logger.Info("resync attempt finished", attrs...)
	m.attemptID = ""
}
