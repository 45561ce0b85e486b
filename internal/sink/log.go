package sink

import (
	"context"
	"sync"

	"github.com/ayusman/mudra/internal/log"
)

// DefaultLogHistory is how many values a LogSink keeps.
const DefaultLogHistory = 256

// LogSink logs volume changes instead of applying them. It keeps the most
// recent values it accepted, which makes it the sink for dry runs and tests.
type LogSink struct {
	mu      sync.Mutex
	values  []int
	history int
}

// NewLogSink creates an empty LogSink keeping DefaultLogHistory values.
func NewLogSink() *LogSink {
	return NewLogSinkSize(DefaultLogHistory)
}

// NewLogSinkSize creates an empty LogSink keeping at most n values (n >= 1).
func NewLogSinkSize(n int) *LogSink {
	return &LogSink{history: max(n, 1)}
}

// SetVolume records percent.
func (s *LogSink) SetVolume(ctx context.Context, percent int) error {
	if err := checkPercent(percent); err != nil {
		return err
	}
	s.mu.Lock()
	if len(s.values) == s.history {
		copy(s.values, s.values[1:])
		s.values = s.values[:len(s.values)-1]
	}
	s.values = append(s.values, percent)
	s.mu.Unlock()

	log.Info("volume", "percent", percent)
	return nil
}

// Name returns "log".
func (s *LogSink) Name() string {
	return KindLog
}

// Values returns a copy of the retained values, oldest first.
func (s *LogSink) Values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.values...)
}

// Last returns the most recent value, if any.
func (s *LogSink) Last() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0, false
	}
	return s.values[len(s.values)-1], true
}
