// WriteBuffer wraps a Bucket and coalesces small or concurrent appends into
// coarse bulk appends, flushed on a self-tuning cooldown (spec §4.5).
//
// Grounded on the teacher's db.go background-task discipline (a mutex
// guarding a small piece of shared state, background work spawned only when
// idle) generalized into the two-task (writer/cooldown) relay the spec
// describes, and on its WaitGroup-free "snapshot a done channel under the
// lock, wait outside it" pattern for Sync.
package recordstore

import (
	"iter"
	"sync"
	"time"
)

// WriteBuffer absorbs Append calls into an active queue and periodically
// flushes them to its Bucket in bulk.
type WriteBuffer struct {
	bucket *Bucket
	cfg    BufferConfig

	swapMu   sync.Mutex
	notFull  *sync.Cond
	active   []Item
	inactive []Item

	swapRW sync.RWMutex // exclusive during swap+append, shared during count/read

	statusMu     sync.Mutex
	hot          bool
	writerDone   chan struct{}
	cooldownDone chan struct{}
	cooldownMs   int64

	cooldownEvents int64

	errMu sync.Mutex
	bgErr error
}

// NewWriteBuffer wraps bucket in a WriteBuffer using cfg's coalescing
// parameters.
func NewWriteBuffer(bucket *Bucket, cfg BufferConfig) *WriteBuffer {
	cfg = cfg.withDefaults()
	wb := &WriteBuffer{bucket: bucket, cfg: cfg, cooldownMs: cfg.CooldownInitialMs}
	wb.notFull = sync.NewCond(&wb.swapMu)
	return wb
}

func (wb *WriteBuffer) checkErr() error {
	wb.errMu.Lock()
	defer wb.errMu.Unlock()
	return wb.bgErr
}

func (wb *WriteBuffer) setErr(err error) {
	wb.errMu.Lock()
	if wb.bgErr == nil {
		wb.bgErr = &BackgroundError{Cause: err}
	}
	wb.errMu.Unlock()
}

// IsHot reports whether a writer or cooldown task is currently running.
func (wb *WriteBuffer) IsHot() bool {
	wb.statusMu.Lock()
	defer wb.statusMu.Unlock()
	return wb.hot
}

// BufferedCount returns the number of items currently held in the active
// queue, not yet passed to the bucket.
func (wb *WriteBuffer) BufferedCount() int {
	wb.swapMu.Lock()
	defer wb.swapMu.Unlock()
	return len(wb.active)
}

// Append enqueues items and, if the buffer is Cold, spawns a writer task to
// flush them. It blocks only if the buffer is Hot and admitting items would
// push the active queue to cfg.MaxItems or beyond.
func (wb *WriteBuffer) Append(items []Item) error {
	if err := wb.checkErr(); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	wb.swapMu.Lock()
	for wb.hotUnlocked() && len(wb.active)+len(items) >= wb.cfg.MaxItems {
		wb.notFull.Wait()
	}
	wb.active = append(wb.active, items...)
	wb.swapMu.Unlock()

	if wb.IsHot() {
		return nil
	}

	wb.statusMu.Lock()
	if wb.hot {
		wb.statusMu.Unlock()
		return nil
	}
	wb.hot = true
	done := make(chan struct{})
	wb.writerDone = done
	wb.statusMu.Unlock()

	go wb.runWriter(done)
	return nil
}

// hotUnlocked reads wb.hot under statusMu. Append calls it while already
// holding swapMu for the bounded-buffer check; no path takes swapMu while
// holding statusMu.
func (wb *WriteBuffer) hotUnlocked() bool {
	wb.statusMu.Lock()
	defer wb.statusMu.Unlock()
	return wb.hot
}

// runWriter performs one swap-and-append cycle: steal the active queue,
// persist it to the bucket, then either spawn a cooldown task (if more items
// arrived meanwhile) or go Cold.
func (wb *WriteBuffer) runWriter(done chan struct{}) {
	defer close(done)

	wb.swapRW.Lock()
	wb.swapMu.Lock()
	wb.active, wb.inactive = wb.inactive, wb.active
	batch := wb.inactive
	wb.inactive = nil
	wb.notFull.Broadcast()
	wb.swapMu.Unlock()

	var appendErr error
	if len(batch) > 0 {
		_, appendErr = wb.bucket.Append(batch)
	}
	wb.swapRW.Unlock()

	if appendErr != nil {
		wb.setErr(appendErr)
		wb.statusMu.Lock()
		wb.hot = false
		wb.statusMu.Unlock()
		return
	}

	backlog := wb.BufferedCount()
	if backlog == 0 {
		wb.statusMu.Lock()
		wb.hot = false
		wb.statusMu.Unlock()
		wb.cooldownEvents++
		return
	}

	wb.statusMu.Lock()
	sleep := wb.nextCooldownLocked(backlog)
	cdone := make(chan struct{})
	wb.cooldownDone = cdone
	wb.statusMu.Unlock()

	go wb.runCooldown(cdone, sleep)
}

// nextCooldownLocked computes the next sleep duration from the outstanding
// backlog, per spec §4.5: small when backlog exceeds MaxItems, approaching
// CooldownMaxMs as backlog shrinks toward zero. Caller holds statusMu.
func (wb *WriteBuffer) nextCooldownLocked(backlog int) time.Duration {
	frac := 1 - float64(backlog)/float64(wb.cfg.MaxItems)
	if frac < 0 {
		frac = 0
	}
	ms := float64(wb.cfg.CooldownMaxMs) * frac
	if ms < float64(wb.cfg.CooldownInitialMs) {
		ms = float64(wb.cfg.CooldownInitialMs)
	}
	if ms > float64(wb.cfg.CooldownMaxMs) {
		ms = float64(wb.cfg.CooldownMaxMs)
	}
	wb.cooldownMs = int64(ms)
	return time.Duration(wb.cooldownMs) * time.Millisecond
}

func (wb *WriteBuffer) runCooldown(done chan struct{}, sleep time.Duration) {
	defer close(done)
	time.Sleep(sleep)

	wb.statusMu.Lock()
	wdone := make(chan struct{})
	wb.writerDone = wdone
	wb.statusMu.Unlock()

	wb.runWriter(wdone)
}

// Sync awaits the writer task, then the cooldown task, then the writer task
// again (the cooldown may have respawned it), per spec §4.5. At return the
// active queue is empty and every item admitted before the call is
// persisted, barring concurrent admissions racing the drain.
func (wb *WriteBuffer) Sync() error {
	wb.awaitWriter()
	wb.awaitCooldown()
	wb.awaitWriter()
	if err := wb.checkErr(); err != nil {
		return err
	}
	return wb.bucket.Sync()
}

func (wb *WriteBuffer) awaitWriter() {
	wb.statusMu.Lock()
	done := wb.writerDone
	wb.statusMu.Unlock()
	if done != nil {
		<-done
	}
}

func (wb *WriteBuffer) awaitCooldown() {
	wb.statusMu.Lock()
	done := wb.cooldownDone
	wb.statusMu.Unlock()
	if done != nil {
		<-done
	}
}

// Count returns Bucket.count() plus the size of the active queue.
func (wb *WriteBuffer) Count() (int64, error) {
	if err := wb.checkErr(); err != nil {
		return 0, err
	}
	wb.swapRW.RLock()
	defer wb.swapRW.RUnlock()
	return wb.bucket.Count() + int64(wb.BufferedCount()), nil
}

// Read dispatches to the bucket when i < Bucket.count(), and to the active
// queue by position otherwise.
func (wb *WriteBuffer) Read(i int64) (Item, error) {
	if err := wb.checkErr(); err != nil {
		return nil, err
	}
	wb.swapRW.RLock()
	defer wb.swapRW.RUnlock()

	bc := wb.bucket.Count()
	if i < bc {
		return wb.bucket.Read(i)
	}

	wb.swapMu.Lock()
	defer wb.swapMu.Unlock()
	pos := i - bc
	if pos < 0 || pos >= int64(len(wb.active)) {
		return nil, outOfRange("WriteBuffer.Read", "index out of range of bucket and buffered queue")
	}
	return wb.active[pos], nil
}

// ReadBulk returns take consecutive items starting at from, transparently
// spanning the boundary between persisted and buffered items if needed.
func (wb *WriteBuffer) ReadBulk(from, take int64) ([]Item, error) {
	if err := wb.checkErr(); err != nil {
		return nil, err
	}
	if from < 0 || take < 0 {
		return nil, outOfRange("WriteBuffer.ReadBulk", "negative from or take")
	}

	wb.swapRW.RLock()
	defer wb.swapRW.RUnlock()

	bc := wb.bucket.Count()

	wb.swapMu.Lock()
	total := bc + int64(len(wb.active))
	if from+take > total {
		wb.swapMu.Unlock()
		return nil, outOfRange("WriteBuffer.ReadBulk", "range exceeds bucket count plus buffered queue")
	}
	var buffered []Item
	if from+take > bc {
		start := from - bc
		if start < 0 {
			start = 0
		}
		end := (from + take) - bc
		buffered = append([]Item(nil), wb.active[start:end]...)
	}
	wb.swapMu.Unlock()

	if take == 0 {
		return nil, nil
	}

	result := make([]Item, 0, take)
	if from < bc {
		n := bc - from
		if n > take {
			n = take
		}
		part, err := wb.bucket.ReadBulk(from, n)
		if err != nil {
			return nil, err
		}
		result = append(result, part...)
	}
	result = append(result, buffered...)
	return result, nil
}

// AsEnumerable yields every item, persisted and buffered, in index order,
// paging through ReadBulk in the underlying bucket's configured
// as_enumerable_page_size chunks. Callers consume lazily via range and can
// break early to stop the scan.
func (wb *WriteBuffer) AsEnumerable() iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		pageSize := wb.bucket.enumPageSize
		from := int64(0)
		for {
			total, err := wb.Count()
			if err != nil {
				yield(nil, err)
				return
			}
			if from >= total {
				return
			}
			take := pageSize
			if from+take > total {
				take = total - from
			}
			items, err := wb.ReadBulk(from, take)
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

// WriteBufferStats reports coalescing and bucket-level counters.
type WriteBufferStats struct {
	Hot            bool
	BufferedCount  int
	CooldownMs     int64
	CooldownEvents int64
	Bucket         BucketStats
}

// Statistics reports the buffer's coalescing state and the underlying
// bucket's statistics.
func (wb *WriteBuffer) Statistics() WriteBufferStats {
	wb.statusMu.Lock()
	cooldownMs := wb.cooldownMs
	hot := wb.hot
	wb.statusMu.Unlock()
	return WriteBufferStats{
		Hot:            hot,
		BufferedCount:  wb.BufferedCount(),
		CooldownMs:     cooldownMs,
		CooldownEvents: wb.cooldownEvents,
		Bucket:         wb.bucket.Statistics(),
	}
}

// Delete drains the buffer and tears down the underlying bucket.
func (wb *WriteBuffer) Delete() error {
	if err := wb.Sync(); err != nil {
		return err
	}
	return wb.bucket.Delete()
}

// Close drains the buffer and releases the underlying bucket's resources
// without deleting any data.
func (wb *WriteBuffer) Close() error {
	if err := wb.Sync(); err != nil {
		return err
	}
	return wb.bucket.Close()
}
