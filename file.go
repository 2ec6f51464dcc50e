// FileAccess owns a single backing file and grows it in coarse chunks.
//
// Grounded on the teacher's db.go file-handle ownership pattern (a single
// *os.File opened once at construction, positioned reads/writes via
// ReadAt/WriteAt so callers never race on a shared cursor) generalized from
// the teacher's JSONL append file to a file that is grown ahead of writes
// instead of only appended to.
package recordstore

import (
	"fmt"
	"os"
	"sync"
)

// FileAccess owns one file path, creating it at an initial size if absent
// and growing it by its configured quantum whenever a write would overrun
// the current size.
type FileAccess struct {
	path string
	f    *os.File

	mu       sync.Mutex // guards size and grow-on-write
	size     int64
	quantum  int64
}

// OpenFileAccess opens path, creating it at initialSize if it does not
// already exist, or reusing its current size if it does. quantum is the unit
// the file grows by (and the unit initialSize is rounded up to).
func OpenFileAccess(path string, initialSize, quantum int64) (*FileAccess, error) {
	if quantum <= 0 {
		return nil, fmt.Errorf("%w: growth quantum must be positive", ErrInvalidConfig)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file access %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file access %q: %w", path, err)
	}

	size := info.Size()
	if size == 0 {
		size = roundUp(initialSize, quantum)
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("grow file access %q: %w", path, err)
		}
	}

	return &FileAccess{path: path, f: f, size: size, quantum: quantum}, nil
}

// Size returns the current file size.
func (fa *FileAccess) Size() int64 {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.size
}

// ReadAt reads exactly length bytes at offset, failing if the range extends
// beyond the current file size.
func (fa *FileAccess) ReadAt(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, outOfRange("FileAccess.ReadAt", "negative offset or length")
	}
	if offset+length > fa.Size() {
		return nil, outOfRange("FileAccess.ReadAt", fmt.Sprintf("range [%d,%d) exceeds file size", offset, offset+length))
	}

	buf := make([]byte, length)
	if _, err := fa.f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("recordstore: io failure reading %q: %w", fa.path, err)
	}
	return buf, nil
}

// WriteAt grows the file to the next multiple of the growth quantum if
// offset+len(data) exceeds the current size, then writes data at offset.
func (fa *FileAccess) WriteAt(offset int64, data []byte) error {
	if offset < 0 {
		return outOfRange("FileAccess.WriteAt", "negative offset")
	}
	end := offset + int64(len(data))

	fa.mu.Lock()
	if end > fa.size {
		newSize := roundUp(end, fa.quantum)
		if err := fa.f.Truncate(newSize); err != nil {
			fa.mu.Unlock()
			return fmt.Errorf("recordstore: io failure growing %q: %w", fa.path, err)
		}
		fa.size = newSize
	}
	fa.mu.Unlock()

	if len(data) == 0 {
		return nil
	}
	if _, err := fa.f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("recordstore: io failure writing %q: %w", fa.path, err)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (fa *FileAccess) Sync() error {
	return fa.f.Sync()
}

// Delete closes the file and removes it.
func (fa *FileAccess) Delete() error {
	closeErr := fa.f.Close()
	removeErr := os.Remove(fa.path)
	if closeErr != nil {
		return fmt.Errorf("recordstore: closing %q: %w", fa.path, closeErr)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("recordstore: removing %q: %w", fa.path, removeErr)
	}
	return nil
}

// Close closes the file without removing it.
func (fa *FileAccess) Close() error {
	return fa.f.Close()
}

// removeIfExists removes path, tolerating its absence.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("recordstore: removing %q: %w", path, err)
	}
	return nil
}

func roundUp(n, quantum int64) int64 {
	if n <= 0 {
		return quantum
	}
	rem := n % quantum
	if rem == 0 {
		return n
	}
	return n + (quantum - rem)
}
