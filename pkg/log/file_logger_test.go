package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testEvent(connID string, zone uint8) Event {
	return Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: connID,
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Zone:         zone,
		Message:      &MessageEvent{Type: MessageTypePush, Code: 0x0D, Command: "VOLUME", Data: []byte{42}},
	}
}

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.alog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	logger.Log(testEvent("conn-1", 1))

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("log file is empty")
	}
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.alog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint8(1); i <= 2; i++ {
		logger.Log(testEvent("conn-1", i))
	}
	logger.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var count int
	for {
		event, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
		if event.ConnectionID != "conn-1" {
			t.Errorf("ConnectionID = %q", event.ConnectionID)
		}
		if event.Message == nil || event.Message.Command != "VOLUME" {
			t.Errorf("Message = %+v", event.Message)
		}
	}
	if count != 2 {
		t.Errorf("read %d events, want 2", count)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.alog")

	first, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	first.Log(testEvent("conn-1", 1))
	first.Close()

	second, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	second.Log(testEvent("conn-2", 1))
	second.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var ids []string
	for {
		event, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, event.ConnectionID)
	}

	if len(ids) != 2 || ids[0] != "conn-1" || ids[1] != "conn-2" {
		t.Errorf("connection IDs = %v", ids)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.alog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}

	const goroutines = 8
	const perGoroutine = 25

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				logger.Log(testEvent("conn-1", 1))
			}
		}()
	}
	wg.Wait()
	logger.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var count int
	for {
		if _, err := r.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("corrupt record after concurrent writes: %v", err)
		}
		count++
	}
	if count != goroutines*perGoroutine {
		t.Errorf("read %d events, want %d", count, goroutines*perGoroutine)
	}
}

func TestFileLoggerClosedIsSilent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.alog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Close()

	// Must not panic.
	logger.Log(testEvent("conn-1", 1))

	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}
