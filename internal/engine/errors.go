package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrOpen is returned when the backing log cannot be opened, read or trimmed.
	ErrOpen = errors.New("cannot open log")

	// ErrCorrupted is matched by every CorruptionError.
	ErrCorrupted = errors.New("corrupted log record")

	// ErrIO is returned when an append, flush, fsync or rename fails on a live store.
	ErrIO = errors.New("log i/o failure")

	// ErrNotFound is returned when removing a key that does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// CorruptionError reports a structurally complete record that fails
// verification during replay.
type CorruptionError struct {
	Offset   int64
	Expected uint32
	Actual   uint32
	// Err is set when the header is impossible or the checksum matched but
	// the payload could not be decoded.
	Err error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupted log record at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("corrupted log record at offset %d: checksum %08x, computed %08x",
		e.Offset, e.Expected, e.Actual)
}

func (e *CorruptionError) Unwrap() error {
	return ErrCorrupted
}
