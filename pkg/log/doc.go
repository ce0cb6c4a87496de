// Package log provides structured protocol capture for Arcam control
// sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, client).
// It is separate from operational logging (slog): protocol capture provides
// a complete machine-readable event trace for debugging firmware quirks
// and analyzing receiver behavior offline.
//
// # Basic Usage
//
// Applications configure capture by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("session.alog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Wire: Decoded request/answer frames (MessageEvent)
//   - Client: Connection, detection and zone state changes (StateChangeEvent)
//
// Errors have a dedicated event type usable at any layer.
//
// # File Format
//
// Capture files use CBOR encoding, one event per record, with the .alog
// extension. Reader streams them back with optional filtering.
package log
