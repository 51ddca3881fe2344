package cbf

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds marks any read past the end of the buffered file.
	// Always fatal for the current file.
	ErrOutOfBounds = errors.New("read past end of file")
	// ErrUnrecognizedFormat marks a missing or corrupted CBF signature:
	// the file is not a CBF, or comes from firmware this tool has not
	// seen. Distinct from ErrOutOfBounds.
	ErrUnrecognizedFormat = errors.New("CBF signature not found")
	// ErrUnsupportedModule marks a well-formed CBF from a module family
	// with no parameter catalog.
	ErrUnsupportedModule = errors.New("unsupported module family")
	// ErrFaulted marks a decode aborted mid-file.
	ErrFaulted = errors.New("decode faulted")
)

// DecodeError attaches file context to one of the sentinel errors so a
// failure can be reported with the byte offset and the last successfully
// decoded timestamp.
type DecodeError struct {
	Kind      error
	Offset    int64
	Timestamp float64
	HasTime   bool
	Detail    string
}

func (e *DecodeError) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	msg = fmt.Sprintf("%s (offset %d)", msg, e.Offset)
	if e.HasTime {
		msg = fmt.Sprintf("%s, last good timestamp %g", msg, e.Timestamp)
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}
