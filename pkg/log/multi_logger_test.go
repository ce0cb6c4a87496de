package log

import (
	"sync"
	"testing"
)

// captureLogger records events for assertions.
type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLogger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestMultiLoggerFansOut(t *testing.T) {
	a := &captureLogger{}
	b := &captureLogger{}
	m := NewMultiLogger(a, b)

	for i := 0; i < 3; i++ {
		m.Log(testEvent("conn-1", 1))
	}

	if a.count() != 3 {
		t.Errorf("first logger got %d events, want 3", a.count())
	}
	if b.count() != 3 {
		t.Errorf("second logger got %d events, want 3", b.count())
	}
}

func TestMultiLoggerEmpty(t *testing.T) {
	m := NewMultiLogger()
	// Must not panic with no destinations.
	m.Log(testEvent("conn-1", 1))
}
