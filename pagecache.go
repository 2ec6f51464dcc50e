// PagedCache wraps a FileAccess with a read-through, write-through,
// fixed-page-size LRU cache with hot-prefix pinning (spec §4.2).
//
// Grounded on the teacher's single-mutex-guards-shared-state style (db.go's
// db.mu around the count/header) generalized to page granularity, and on the
// map+intrusive-recency-list shape of segmentio-datastructures' cache.LRU
// (see lru.go for why that package is not imported directly).
package recordstore

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// PageCacheStats carries the atomic counters spec §4.2 requires.
type PageCacheStats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Promotions    int64
	WriteThroughs int64
}

func (s PageCacheStats) String() string {
	total := s.Hits + s.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(s.Hits) / float64(total)
	}
	return fmt.Sprintf(
		"hits=%d misses=%d hit_rate=%.4f evictions=%d promotions=%d write_throughs=%d",
		s.Hits, s.Misses, hitRate, s.Evictions, s.Promotions, s.WriteThroughs,
	)
}

// PagedCache is a fixed-page-size, read-through, write-through LRU cache
// over a FileAccess. The backing FileAccess's growth quantum must equal
// pageSize so that any page index within the current file size is fully
// resident on disk; Bucket and StringHeap both arrange this when they
// construct their FileAccess/PagedCache pairs.
type PagedCache struct {
	file      *FileAccess
	pageSize  int64
	maxPages  int
	hotPrefix int

	mu    sync.Mutex
	pages map[int64][]byte
	lru   *lruList

	hits, misses, evictions, promotions, writeThroughs atomic.Int64
}

// NewPagedCache constructs a PagedCache over file using cfg's page size,
// resident-page cap, and hot-prefix size.
func NewPagedCache(file *FileAccess, cfg CacheConfig) (*PagedCache, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &PagedCache{
		file:      file,
		pageSize:  cfg.PageSize,
		maxPages:  cfg.MaxCachedPages,
		hotPrefix: cfg.HotPrefix,
		pages:     make(map[int64][]byte),
		lru:       newLRUList(),
	}, nil
}

// Read returns exactly length bytes starting at offset, faulting in pages
// as needed.
func (c *PagedCache) Read(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, outOfRange("PagedCache.Read", "negative offset or length")
	}
	out := make([]byte, length)
	remaining := length
	cur := offset
	written := int64(0)

	for remaining > 0 {
		pageIndex := cur / c.pageSize
		pageStart := pageIndex * c.pageSize
		within := cur - pageStart
		avail := c.pageSize - within
		n := remaining
		if n > avail {
			n = avail
		}

		chunk, err := c.readSlice(pageIndex, within, n)
		if err != nil {
			return nil, err
		}
		copy(out[written:written+n], chunk)

		written += n
		cur += n
		remaining -= n
	}
	return out, nil
}

// readSlice returns n bytes at offset within within page pageIndex,
// faulting the page in on a miss. The whole operation — including the disk
// read on miss — runs under the cache mutex, per spec §4.2's Read algorithm.
func (c *PagedCache) readSlice(pageIndex, within, n int64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if page, ok := c.pages[pageIndex]; ok {
		c.hits.Add(1)
		if !c.lru.withinTail(pageIndex, c.hotPrefix) {
			if node, ok := c.lru.nodes[pageIndex]; ok {
				c.lru.moveToBack(node)
				c.promotions.Add(1)
			}
		}
		out := make([]byte, n)
		copy(out, page[within:within+n])
		return out, nil
	}

	c.misses.Add(1)
	pageStart := pageIndex * c.pageSize
	page, err := c.file.ReadAt(pageStart, c.pageSize)
	if err != nil {
		return nil, fmt.Errorf("PagedCache.Read: %w", err)
	}

	if c.lru.Len() >= c.maxPages {
		if evicted, ok := c.lru.popFront(); ok {
			delete(c.pages, evicted)
			c.evictions.Add(1)
		}
	}
	c.pages[pageIndex] = page
	c.lru.pushBack(pageIndex)

	out := make([]byte, n)
	copy(out, page[within:within+n])
	return out, nil
}

// Write patches any resident pages overlapping the write range, then writes
// the bytes through to the backing file. Non-resident pages are never
// faulted in by a write.
func (c *PagedCache) Write(offset int64, data []byte) error {
	if offset < 0 {
		return outOfRange("PagedCache.Write", "negative offset")
	}
	if len(data) > 0 {
		c.patchResidentPages(offset, data)
	}
	if err := c.file.WriteAt(offset, data); err != nil {
		return fmt.Errorf("PagedCache.Write: %w", err)
	}
	c.writeThroughs.Add(1)
	return nil
}

func (c *PagedCache) patchResidentPages(offset int64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := offset + int64(len(data))
	startPage := offset / c.pageSize
	endPage := (end - 1) / c.pageSize

	for pageIndex := startPage; pageIndex <= endPage; pageIndex++ {
		page, ok := c.pages[pageIndex]
		if !ok {
			continue
		}
		pageStart := pageIndex * c.pageSize
		pageEnd := pageStart + c.pageSize

		overlapStart := max64(offset, pageStart)
		overlapEnd := min64(end, pageEnd)
		if overlapStart >= overlapEnd {
			continue
		}
		copy(page[overlapStart-pageStart:overlapEnd-pageStart], data[overlapStart-offset:overlapEnd-offset])
	}
}

// Stats returns a snapshot of the cache's accounting counters.
func (c *PagedCache) Stats() PageCacheStats {
	return PageCacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Promotions:    c.promotions.Load(),
		WriteThroughs: c.writeThroughs.Load(),
	}
}

// ResidentPages returns the number of pages currently cached, for tests.
func (c *PagedCache) ResidentPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// Delete clears cache state and deletes the underlying file.
func (c *PagedCache) Delete() error {
	c.mu.Lock()
	c.pages = make(map[int64][]byte)
	c.lru = newLRUList()
	c.mu.Unlock()
	return c.file.Delete()
}

// Sync flushes the backing file.
func (c *PagedCache) Sync() error {
	return c.file.Sync()
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
