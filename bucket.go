// Bucket maps a Schema to a deterministic fixed-width byte layout over a
// record file, using a StringHeap to hold String-field payloads (spec §4.4).
//
// Grounded on the teacher's db.go: a header prefix holding the live count, an
// allocation mutex that reserves a range before any bytes move, and bulk
// operations (Set/List in the teacher; Append/ReadBulk here) as the only fast
// path. The commit sequencer below generalizes db.go's single global mutex
// into a reservation step plus an ordered commit step, so concurrent large
// appends can write their record bytes in parallel while still publishing the
// count header in reservation order.
package recordstore

import (
	"encoding/binary"
	"fmt"
	"iter"
	"sync"
)

const bucketHeaderSize = 8

// Bucket is a fixed-width record store: Schema.Width() bytes per item,
// prefixed by an 8-byte item count, with String fields stored as a
// (offset, length) pair into a companion StringHeap.
type Bucket struct {
	schema       Schema
	width        int
	fieldOffsets []int

	records *PagedCache
	heap    *StringHeap

	recordPath   string
	stringPath   string
	schemaPath   string
	lock         *ownerLock
	enumPageSize int64

	commitMu  sync.Mutex
	commitCnd *sync.Cond
	reserved  int64 // next index handed out by a reservation, may be ahead of count
	count     int64 // index count visible on disk; guarded by commitMu
	closed    bool
	poisoned  error // first commit failure; once set, the bucket refuses further writes
}

// OpenBucket opens or creates a bucket rooted at recordPath (the fixed-width
// record file) and stringPath (the string heap), enforcing schema via a JSON
// sidecar next to recordPath.
func OpenBucket(schema Schema, recordPath, stringPath string, cfg Config) (*Bucket, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	schemaPath := recordPath + ".schema.json"
	if err := ensureSchemaSidecar(schemaPath, schema); err != nil {
		return nil, err
	}

	lock, err := acquireOwnerLock(recordPath + ".lock")
	if err != nil {
		return nil, err
	}

	fa, err := OpenFileAccess(recordPath, cfg.Cache.InitialFileSize, cfg.Cache.PageSize)
	if err != nil {
		lock.release()
		return nil, err
	}
	records, err := NewPagedCache(fa, cfg.Cache)
	if err != nil {
		lock.release()
		return nil, err
	}
	heap, err := OpenStringHeap(stringPath, cfg.Cache)
	if err != nil {
		lock.release()
		return nil, err
	}

	header, err := records.Read(0, bucketHeaderSize)
	if err != nil {
		lock.release()
		return nil, err
	}
	count := int64(binary.LittleEndian.Uint64(header))

	offsets := make([]int, len(schema.Fields))
	off := 0
	for i, f := range schema.Fields {
		offsets[i] = off
		off += f.Width()
	}

	b := &Bucket{
		schema:       schema,
		width:        schema.Width(),
		fieldOffsets: offsets,
		records:      records,
		heap:         heap,
		recordPath:   recordPath,
		stringPath:   stringPath,
		schemaPath:   schemaPath,
		lock:         lock,
		reserved:     count,
		count:        count,
		enumPageSize: int64(cfg.AsEnumerablePageSize),
	}
	b.commitCnd = sync.NewCond(&b.commitMu)
	return b, nil
}

// Count returns the number of items currently visible.
func (b *Bucket) Count() int64 {
	b.commitMu.Lock()
	defer b.commitMu.Unlock()
	return b.count
}

func (b *Bucket) checkOpen() error {
	b.commitMu.Lock()
	defer b.commitMu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.poisoned != nil {
		return &BackgroundError{Cause: b.poisoned}
	}
	return nil
}

// Append validates and writes items as a single contiguous run, returning the
// index of the first item written. The returned range [start, start+len(items))
// is reserved under a constant-time critical section; the record bytes and
// string payloads are written outside it, and the count header is only
// advanced once every earlier-reserved run has already committed, so appends
// are never interleaved or left with a gap.
//
// A failure writing either the record bytes or the count header poisons the
// bucket: the failing call and every batch already waiting on an earlier
// start return a wrapped BackgroundError, and every later call fails the same
// way via checkOpen. A reserved index is never silently skipped.
func (b *Bucket) Append(items []Item) (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	k := len(items)
	if k == 0 {
		return b.Count(), nil
	}
	for _, item := range items {
		if err := validateItem(b.schema, item); err != nil {
			return 0, err
		}
	}

	type pending struct {
		item, field int
	}
	var payloads [][]byte
	var slots []pending
	for ii, item := range items {
		for fi, f := range b.schema.Fields {
			if f.Kind != KindString {
				continue
			}
			v := item[f.Name]
			if v == nil {
				continue
			}
			s := v.(*string)
			if s == nil || *s == "" {
				continue
			}
			payloads = append(payloads, []byte(*s))
			slots = append(slots, pending{ii, fi})
		}
	}
	refs, err := b.heap.AppendMany(payloads)
	if err != nil {
		return 0, err
	}
	stringRefs := make(map[pending]StringRef, len(slots))
	for i, p := range slots {
		stringRefs[p] = refs[i]
	}

	buf := make([]byte, k*b.width)
	for ii, item := range items {
		rec := buf[ii*b.width : (ii+1)*b.width]
		for fi, f := range b.schema.Fields {
			fieldBuf := rec[b.fieldOffsets[fi] : b.fieldOffsets[fi]+f.Width()]
			if f.Kind != KindString {
				encodeScalar(fieldBuf, f, item[f.Name])
				continue
			}
			v := item[f.Name]
			var ref StringRef
			sp, _ := v.(*string)
			switch {
			case v == nil || sp == nil:
				ref = StringRef{Offset: stringOffsetNull, Length: 0}
			case *sp == "":
				ref = StringRef{Offset: stringOffsetEmpty, Length: 0}
			default:
				ref = stringRefs[pending{ii, fi}]
			}
			encodeStringRef(fieldBuf, ref)
		}
	}

	b.commitMu.Lock()
	start := b.reserved
	b.reserved = start + int64(k)
	b.commitMu.Unlock()

	writeErr := b.records.Write(bucketHeaderSize+start*int64(b.width), buf)

	// Every exit from here on holds commitMu exactly once, poisons on any
	// new failure, and broadcasts unconditionally, so a batch that reserved
	// a higher start than a failed one is never left waiting on a count
	// that can no longer advance.
	b.commitMu.Lock()
	if writeErr != nil && b.poisoned == nil {
		b.poisoned = writeErr
	}
	for b.poisoned == nil && b.count != start {
		b.commitCnd.Wait()
	}
	if b.poisoned != nil {
		cause := b.poisoned
		b.commitCnd.Broadcast()
		b.commitMu.Unlock()
		return 0, &BackgroundError{Cause: cause}
	}

	newCount := start + int64(k)
	var headerBuf [bucketHeaderSize]byte
	binary.LittleEndian.PutUint64(headerBuf[:], uint64(newCount))
	werr := b.records.Write(0, headerBuf[:])
	if werr == nil {
		b.count = newCount
	} else {
		b.poisoned = werr
	}
	b.commitCnd.Broadcast()
	b.commitMu.Unlock()
	if werr != nil {
		return 0, &BackgroundError{Cause: werr}
	}

	return start, nil
}

// Read returns the single item at index i.
func (b *Bucket) Read(i int64) (Item, error) {
	items, err := b.ReadBulk(i, 1)
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// ReadBulk returns take consecutive items starting at from. Per the spec's
// resolved Open Question, the bounds check is always the strict
// [from, from+take) ⊆ [0, count) form, for both the dynamic and static APIs.
func (b *Bucket) ReadBulk(from, take int64) ([]Item, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if from < 0 || take < 0 {
		return nil, outOfRange("Bucket.ReadBulk", "negative from or take")
	}
	count := b.Count()
	if from+take > count {
		return nil, outOfRange("Bucket.ReadBulk", fmt.Sprintf("range [%d,%d) exceeds count %d", from, from+take, count))
	}
	if take == 0 {
		return nil, nil
	}

	buf, err := b.records.Read(bucketHeaderSize+from*int64(b.width), take*int64(b.width))
	if err != nil {
		return nil, err
	}

	items := make([]Item, take)
	for ii := int64(0); ii < take; ii++ {
		rec := buf[ii*int64(b.width) : (ii+1)*int64(b.width)]
		item := make(Item, len(b.schema.Fields))
		for fi, f := range b.schema.Fields {
			fieldBuf := rec[b.fieldOffsets[fi] : b.fieldOffsets[fi]+f.Width()]
			if f.Kind != KindString {
				item[f.Name] = decodeScalar(fieldBuf, f)
				continue
			}
			ref := decodeStringRef(fieldBuf)
			s, err := b.heap.Load(ref.Offset, ref.Length)
			if err != nil {
				return nil, err
			}
			item[f.Name] = s
		}
		items[ii] = item
	}
	return items, nil
}

// AsEnumerable yields every item in the bucket in index order, paging
// through ReadBulk in cfg.AsEnumerablePageSize-sized chunks rather than
// materializing the whole bucket at once. Callers consume lazily via range
// and can break early to stop the scan; a bulk-read error is yielded once
// and ends iteration.
func (b *Bucket) AsEnumerable() iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		from := int64(0)
		for {
			count := b.Count()
			if from >= count {
				return
			}
			take := b.enumPageSize
			if from+take > count {
				take = count - from
			}
			items, err := b.ReadBulk(from, take)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			from += take
		}
	}
}

// Schema returns the bucket's schema.
func (b *Bucket) Schema() Schema {
	return b.schema
}

// BucketStats reports the bucket's size and cache effectiveness.
type BucketStats struct {
	Count       int64
	Width       int
	RecordCache PageCacheStats
	HeapCache   PageCacheStats
}

func (s BucketStats) String() string {
	return fmt.Sprintf("count=%d width=%d records[%s] heap[%s]", s.Count, s.Width, s.RecordCache, s.HeapCache)
}

// Statistics reports the bucket's current size and cache effectiveness.
func (b *Bucket) Statistics() BucketStats {
	return BucketStats{
		Count:       b.Count(),
		Width:       b.width,
		RecordCache: b.records.Stats(),
		HeapCache:   b.heap.Stats(),
	}
}

// Sync flushes both backing files. Append is synchronous by construction, so
// Sync exists for API symmetry with WriteBuffer and Partitioner, and to force
// durability (fsync) of writes the OS has buffered.
func (b *Bucket) Sync() error {
	if err := b.records.Sync(); err != nil {
		return err
	}
	return b.heap.Sync()
}

// Close releases the bucket's file handles and single-owner lock without
// deleting any data. A closed bucket rejects further operations with
// ErrClosed.
func (b *Bucket) Close() error {
	b.commitMu.Lock()
	if b.closed {
		b.commitMu.Unlock()
		return nil
	}
	b.closed = true
	b.commitMu.Unlock()

	syncErr := b.Sync()
	lockErr := b.lock.release()
	if syncErr != nil {
		return syncErr
	}
	return lockErr
}

// Delete tears down the record file, string heap, and schema sidecar.
func (b *Bucket) Delete() error {
	b.commitMu.Lock()
	b.closed = true
	b.commitMu.Unlock()
	b.lock.release()

	if err := b.records.Delete(); err != nil {
		return err
	}
	if err := b.heap.Delete(); err != nil {
		return err
	}
	return removeIfExists(b.schemaPath)
}
