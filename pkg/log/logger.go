package log

// Logger receives protocol capture events. The client calls Log from its
// read and write loops, so implementations must be safe for concurrent
// use and return quickly.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. The client falls back to it when no
// capture is configured.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
