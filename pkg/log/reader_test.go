package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

// writeEvents writes a mixed capture file and returns its path.
func writeEvents(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.alog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	events := []Event{
		{
			Timestamp: base, ConnectionID: "conn-a",
			Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage,
			Zone:    1,
			Message: &MessageEvent{Type: MessageTypeRequest, Code: 0x0D, Command: "VOLUME"},
		},
		{
			Timestamp: base.Add(time.Second), ConnectionID: "conn-a",
			Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Zone:    1,
			Message: &MessageEvent{Type: MessageTypeAnswer, Code: 0x0D, Command: "VOLUME"},
		},
		{
			Timestamp: base.Add(2 * time.Second), ConnectionID: "conn-b",
			Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Zone:    2,
			Message: &MessageEvent{Type: MessageTypePush, Code: 0x00, Command: "POWER"},
		},
		{
			Timestamp: base.Add(3 * time.Second), ConnectionID: "conn-b",
			Direction: DirectionIn, Layer: LayerWire, Category: CategoryError,
			Error: &ErrorEventData{Layer: LayerWire, Message: "missing end marker"},
		},
	}
	for _, e := range events {
		logger.Log(e)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, event)
	}
}

func TestReaderUnfiltered(t *testing.T) {
	path := writeEvents(t)

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if got := readAll(t, r); len(got) != 4 {
		t.Errorf("read %d events, want 4", len(got))
	}
}

func TestReaderFilters(t *testing.T) {
	path := writeEvents(t)

	dirIn := DirectionIn
	catErr := CategoryError
	zone2 := uint8(2)
	mid := time.Date(2026, 3, 14, 12, 0, 1, 500000000, time.UTC)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by connection", Filter{ConnectionID: "conn-a"}, 2},
		{"by direction", Filter{Direction: &dirIn}, 3},
		{"by category", Filter{Category: &catErr}, 1},
		{"by zone", Filter{Zone: &zone2}, 1},
		{"by time start", Filter{TimeStart: &mid}, 2},
		{"by time end", Filter{TimeEnd: &mid}, 2},
		{"combined", Filter{ConnectionID: "conn-b", Direction: &dirIn}, 2},
		{"no match", Filter{ConnectionID: "conn-z"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()

			if got := readAll(t, r); len(got) != tt.want {
				t.Errorf("read %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope.alog")); err == nil {
		t.Error("expected error for missing file")
	}
}
