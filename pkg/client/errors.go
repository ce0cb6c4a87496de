package client

import (
	"errors"
	"fmt"

	"github.com/jansinger/arcamfmj/pkg/wire"
)

// Client errors.
var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")

	// ErrNotConnected is returned when a command cannot be delivered and
	// the caller asked not to wait for reconnection.
	ErrNotConnected = errors.New("not connected")

	// ErrTimeout is returned when the receiver does not answer a command
	// within the request timeout.
	ErrTimeout = errors.New("command timed out")

	// ErrCancelled is returned for commands flushed by a connection loss.
	ErrCancelled = errors.New("command cancelled")
)

// ResponseError is returned when the receiver answers with a non-OK
// status code. The answer payload is preserved; zone 2 firmware echoes
// the offending request bytes in it.
type ResponseError struct {
	Zone   wire.ZoneID
	Code   wire.CommandCode
	Status wire.AnswerCode
	Data   []byte
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("receiver rejected %v on zone %d: %v", e.Code, e.Zone, e.Status)
}

// Unsupported reports whether the rejection means the command does not
// exist on this model, as opposed to being invalid right now.
func (e *ResponseError) Unsupported() bool {
	return e.Status == wire.AnswerCommandNotRecognised
}

// IsUnsupported reports whether err is a rejection for a command the
// receiver does not implement. Pollers use this to stop asking.
func IsUnsupported(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.Unsupported()
}
