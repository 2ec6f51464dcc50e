// Package recordstore implements an embedded, append-only object store for
// fixed-schema records with variable-length string payloads.
//
// A store persists a dense, 0-based sequence of items to a pair of files: a
// fixed-width record file and a string heap. Bulk appends and bulk reads are
// the fast paths; there is no update-in-place and no per-record delete.
package recordstore

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by store operations. Wrap with fmt.Errorf("%w: ...")
// at call sites so errors.Is still matches the sentinel.
var (
	// ErrOutOfRange is returned when a read addresses an index or range that
	// is not fully contained in [0, count).
	ErrOutOfRange = errors.New("recordstore: index out of range")

	// ErrSchemaMismatch is returned when an item is missing a declared
	// property, carries an unknown one, or when a reopened schema sidecar
	// disagrees with the schema passed to Open.
	ErrSchemaMismatch = errors.New("recordstore: schema mismatch")

	// ErrDecode is returned when on-disk bytes cannot be decoded: malformed
	// UTF-8 in the string heap, or a fixed-width record that fails to parse.
	ErrDecode = errors.New("recordstore: decode error")

	// ErrClosed is returned when operating on a store that has been deleted
	// or otherwise torn down.
	ErrClosed = errors.New("recordstore: store is closed")

	// ErrAlreadyOpen is returned when a store directory is already locked by
	// this or another process. A store is owned by a single process at a
	// time.
	ErrAlreadyOpen = errors.New("recordstore: store already open")

	// ErrInvalidConfig is returned when a Config value fails validation.
	ErrInvalidConfig = errors.New("recordstore: invalid config")
)

// BackgroundError wraps the first error a Bucket's commit sequencer or a
// WriteBuffer's writer task encountered. Once set, a Bucket returns it from
// every subsequent Append and ReadBulk call (Bucket.Sync does not check it),
// and a WriteBuffer from every subsequent Append, Sync, Count, Read, and
// ReadBulk call: a failed write after indices were already reserved would otherwise leave a
// permanent hole in the visible range, or strand any batch waiting on that
// hole's count to advance.
type BackgroundError struct {
	Cause error
}

func (e *BackgroundError) Error() string {
	return fmt.Sprintf("recordstore: background write failed: %v", e.Cause)
}

func (e *BackgroundError) Unwrap() error { return e.Cause }

// outOfRange wraps ErrOutOfRange with operation-specific detail.
func outOfRange(op string, detail string) error {
	return fmt.Errorf("%s: %w: %s", op, ErrOutOfRange, detail)
}

// schemaMismatch wraps ErrSchemaMismatch with detail.
func schemaMismatch(detail string) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, detail)
}

// decodeError wraps ErrDecode with detail.
func decodeError(detail string) error {
	return fmt.Errorf("%w: %s", ErrDecode, detail)
}
