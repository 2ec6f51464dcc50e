// StringHeap is an append-only UTF-8 blob file with concurrent offset
// allocation (spec §4.3).
//
// Grounded on the teacher's header.go (a small fixed-size header read once
// at Open and kept authoritative on disk) and on its single-purpose mutex
// discipline (db.go reserves state transitions under one mutex and performs
// the actual I/O outside it).
package recordstore

import (
	"encoding/binary"
	"sync"
	"unicode/utf8"
)

const stringHeapHeaderSize = 8

// String offset sentinels (spec §3). Never produced by the allocator.
const (
	stringOffsetEmpty = -1
	stringOffsetNull  = -2
)

// StringRef is the (offset, length) pair a Bucket stores inline for a
// String-typed field.
type StringRef struct {
	Offset int64
	Length int32
}

// StringHeap owns one PagedCache holding an 8-byte next-free-offset header
// followed by concatenated UTF-8 payloads.
type StringHeap struct {
	cache *PagedCache

	allocMu  sync.Mutex
	nextFree int64
}

// OpenStringHeap opens or creates the string heap at path.
func OpenStringHeap(path string, cfg CacheConfig) (*StringHeap, error) {
	cfg = cfg.withDefaults()
	fa, err := OpenFileAccess(path, cfg.InitialFileSize, cfg.PageSize)
	if err != nil {
		return nil, err
	}
	cache, err := NewPagedCache(fa, cfg)
	if err != nil {
		return nil, err
	}

	header, err := cache.Read(0, stringHeapHeaderSize)
	if err != nil {
		return nil, err
	}
	nextFree := int64(binary.LittleEndian.Uint64(header))
	if nextFree < stringHeapHeaderSize {
		nextFree = stringHeapHeaderSize
	}

	return &StringHeap{cache: cache, nextFree: nextFree}, nil
}

// NextFree returns the current end-of-heap offset.
func (h *StringHeap) NextFree() int64 {
	h.allocMu.Lock()
	defer h.allocMu.Unlock()
	return h.nextFree
}

// AppendMany reserves space for every payload under a single, constant-time
// allocation critical section, then writes the concatenated bytes outside
// the lock. Results are returned in input order.
func (h *StringHeap) AppendMany(payloads [][]byte) ([]StringRef, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	total := int64(0)
	for _, p := range payloads {
		total += int64(len(p))
	}

	h.allocMu.Lock()
	start := h.nextFree
	newFree := start + total
	var headerBuf [stringHeapHeaderSize]byte
	binary.LittleEndian.PutUint64(headerBuf[:], uint64(newFree))
	if err := h.cache.Write(0, headerBuf[:]); err != nil {
		h.allocMu.Unlock()
		return nil, err
	}
	h.nextFree = newFree
	h.allocMu.Unlock()

	refs := make([]StringRef, len(payloads))
	blob := make([]byte, 0, total)
	offset := start
	for i, p := range payloads {
		refs[i] = StringRef{Offset: offset, Length: int32(len(p))}
		blob = append(blob, p...)
		offset += int64(len(p))
	}

	if total > 0 {
		if err := h.cache.Write(start, blob); err != nil {
			return nil, err
		}
	}

	return refs, nil
}

// Load resolves a (offset, length) pair per spec §4.3's sentinel rules:
// offset -1 is the empty string, -2 is null (returned value is nil),
// anything else is a byte range read from the heap and decoded as UTF-8.
func (h *StringHeap) Load(offset int64, length int32) (*string, error) {
	switch offset {
	case stringOffsetEmpty:
		s := ""
		return &s, nil
	case stringOffsetNull:
		return nil, nil
	}
	if offset < stringHeapHeaderSize || length < 0 {
		return nil, outOfRange("StringHeap.Load", "offset/length out of heap range")
	}

	raw, err := h.cache.Read(offset, int64(length))
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, decodeError("string heap payload is not valid UTF-8")
	}
	s := string(raw)
	return &s, nil
}

// Stats returns the underlying page cache's counters.
func (h *StringHeap) Stats() PageCacheStats {
	return h.cache.Stats()
}

// Sync flushes the backing file.
func (h *StringHeap) Sync() error {
	return h.cache.Sync()
}

// Delete tears down the heap file.
func (h *StringHeap) Delete() error {
	return h.cache.Delete()
}
