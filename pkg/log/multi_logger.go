package log

// MultiLogger fans one event stream out to several loggers, typically a
// FileLogger for the capture plus a SlogAdapter for live debugging.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines the given loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log forwards the event to every logger in registration order.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
