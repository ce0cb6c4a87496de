package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTextCapture() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), &buf
}

func TestSlogAdapterMessage(t *testing.T) {
	logger, buf := newTextCapture()
	adapter := NewSlogAdapter(logger)

	status := uint8(0x00)
	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Model:        "AV860",
		Zone:         1,
		Message: &MessageEvent{
			Type:    MessageTypeAnswer,
			Code:    0x0D,
			Command: "VOLUME",
			Status:  &status,
			Data:    []byte{42},
		},
	})

	out := buf.String()
	for _, want := range []string{
		"conn_id=conn-1", "direction=IN", "layer=WIRE",
		"model=AV860", "zone=1", "msg_type=ANSWER", "command=VOLUME",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogAdapterStateChange(t *testing.T) {
	logger, buf := newTextCapture()
	adapter := NewSlogAdapter(logger)

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerClient,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityDetection,
			NewState: "DETECTED",
			Reason:   "AMX beacon",
		},
	})

	out := buf.String()
	for _, want := range []string{"entity=DETECTION", "new_state=DETECTED"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogAdapterError(t *testing.T) {
	logger, buf := newTextCapture()
	adapter := NewSlogAdapter(logger)

	code := uint8(0x0D)
	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryError,
		Error: &ErrorEventData{
			Layer:   LayerWire,
			Message: "missing end marker",
			Code:    &code,
			Context: "decode",
		},
	})

	out := buf.String()
	for _, want := range []string{"error_layer=WIRE", "error_code=13"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
