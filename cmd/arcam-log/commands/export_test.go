package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jansinger/arcamfmj/pkg/log"
	"github.com/jansinger/arcamfmj/pkg/wire"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.alog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func TestExportToJSONL(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	status := uint8(wire.AnswerStatusUpdate)
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-1", Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage, Zone: 1,
			Message: &log.MessageEvent{Type: log.MessageTypeRequest, Code: uint8(wire.CmdVolume), Command: "VOLUME", Data: []byte{0xF0}}},
		{Timestamp: ts, ConnectionID: "conn-1", Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage, Zone: 1,
			Message: &log.MessageEvent{Type: log.MessageTypeAnswer, Code: uint8(wire.CmdVolume), Command: "VOLUME", Status: &status, Data: []byte{0x1E}}},
	}

	path := createTestLogFile(t, events)

	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if err := exportJSONL(reader, &buf); err != nil {
		t.Fatalf("exportJSONL failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}

	// Each line must be valid JSON
	for i, line := range lines {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}

func TestExportToCSV(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 0, time.UTC)
	status := uint8(wire.AnswerCommandNotRecognised)
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-1", Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage, Model: "AVR390", Zone: 2,
			Message: &log.MessageEvent{Type: log.MessageTypeAnswer, Code: uint8(wire.CmdBass), Command: "BASS", Status: &status}},
		{Timestamp: ts, ConnectionID: "conn-1", Direction: log.DirectionOut,
			Layer: log.LayerTransport, Category: log.CategoryMessage,
			Frame: &log.FrameEvent{Size: 6}},
	}

	path := createTestLogFile(t, events)

	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if err := exportCSV(reader, &buf); err != nil {
		t.Fatalf("exportCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}

	header := records[0]
	if header[0] != "timestamp" || header[8] != "command" {
		t.Errorf("unexpected header: %v", header)
	}

	answer := records[1]
	if answer[5] != "AVR390" {
		t.Errorf("expected model AVR390, got %q", answer[5])
	}
	if answer[6] != "2" {
		t.Errorf("expected zone 2, got %q", answer[6])
	}
	if answer[7] != "ANSWER" {
		t.Errorf("expected type ANSWER, got %q", answer[7])
	}
	if answer[8] != "BASS" {
		t.Errorf("expected command BASS, got %q", answer[8])
	}
	if answer[9] != "0x83" {
		t.Errorf("expected status 0x83, got %q", answer[9])
	}

	frame := records[2]
	if frame[7] != "frame" {
		t.Errorf("expected type frame, got %q", frame[7])
	}
	if frame[6] != "" {
		t.Errorf("expected empty zone for frame event, got %q", frame[6])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, []log.Event{
		{Timestamp: time.Now(), Category: log.CategoryMessage},
	})

	err := RunExport(path, "xml", "")
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
	if !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("unexpected error: %v", err)
	}
}
