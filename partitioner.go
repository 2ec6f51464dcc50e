// Partitioner fans appends out to a family of per-partition WriteBuffer and
// Bucket pairs, keyed by a declared schema property (spec §4.6).
//
// Grounded on the teacher's db.go directory-of-files ownership model
// (everything the store owns lives under one base directory, discovered on
// open) and on its single mutex guarding the child map, taken for lookups
// as well as creation; calls into a child run outside it.
package recordstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	partitionRecordsFile = "records.bin"
	partitionStringsFile = "strings.bin"
)

// Partitioner owns a base directory and a set of child buckets, one per
// distinct value of a declared partition-key property.
type Partitioner struct {
	name        string
	dir         string
	schema      Schema
	keyField    string
	cfg         Config

	mu       sync.Mutex // guards children and order, for lookups as well as creation
	children map[string]*WriteBuffer
	order    []string // insertion order, for read_all's iteration-order guarantee

	manifest *partitionManifest
}

// OpenPartitioner opens or creates a partitioner rooted at dir. keyField must
// name a declared property of schema; its value on each appended item
// selects the child partition. Existing partition subdirectories under dir
// are discovered and reopened.
func OpenPartitioner(name, dir string, schema Schema, keyField string, cfg Config) (*Partitioner, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if schema.IndexOf(keyField) < 0 {
		return nil, schemaMismatch(fmt.Sprintf("partition key %q is not a declared schema property", keyField))
	}
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recordstore: creating partition directory %q: %w", dir, err)
	}

	manifest, err := openPartitionManifest(dir)
	if err != nil {
		return nil, err
	}

	p := &Partitioner{
		name:     name,
		dir:      dir,
		schema:   schema,
		keyField: keyField,
		cfg:      cfg,
		children: make(map[string]*WriteBuffer),
		manifest: manifest,
	}

	known := manifest.entriesSnapshot()
	if len(known) > 0 {
		dirNames := make([]string, 0, len(known))
		for _, dirName := range known {
			dirNames = append(dirNames, dirName)
		}
		sort.Strings(dirNames)
		for _, dirName := range dirNames {
			if _, err := p.openChildDir(dirName); err != nil {
				return nil, err
			}
		}
		return p, nil
	}

	// No manifest yet (fresh store, or one created before the manifest was
	// introduced): fall back to discovering partition subdirectories
	// directly, per spec §4.6.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("recordstore: listing partition directory %q: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := p.openChildDir(e.Name()); err != nil {
			return nil, err
		}
		if err := p.manifest.record(e.Name(), e.Name()); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Partitioner) openChildDir(dirName string) (*WriteBuffer, error) {
	recordPath := filepath.Join(p.dir, dirName, partitionRecordsFile)
	stringPath := filepath.Join(p.dir, dirName, partitionStringsFile)
	bucket, err := OpenBucket(p.schema, recordPath, stringPath, p.cfg)
	if err != nil {
		return nil, err
	}
	wb := NewWriteBuffer(bucket, p.cfg.Buffer)
	p.children[dirName] = wb
	p.order = append(p.order, dirName)
	return wb, nil
}

// childFor returns the child for keyString, creating it under the
// partition-creation mutex if it does not already exist.
func (p *Partitioner) childFor(keyString string) (*WriteBuffer, error) {
	dirName := partitionDirName(keyString, p.cfg.PartitionHashAlgorithm)

	p.mu.Lock()
	defer p.mu.Unlock()

	if wb, ok := p.children[dirName]; ok {
		return wb, nil
	}

	childDir := filepath.Join(p.dir, dirName)
	if err := os.MkdirAll(childDir, 0o755); err != nil {
		return nil, fmt.Errorf("recordstore: creating partition %q: %w", sanitizedKeyPreview(dirName), err)
	}
	wb, err := p.openChildDir(dirName)
	if err != nil {
		return nil, err
	}
	if err := p.manifest.record(keyString, dirName); err != nil {
		return nil, err
	}
	return wb, nil
}

// Append extracts the partition key from item via the declared key field,
// and delegates to the (lazily created) child for that key.
func (p *Partitioner) Append(item Item) error {
	key, ok := item[p.keyField]
	if !ok {
		return schemaMismatch(fmt.Sprintf("item missing partition key field %q", p.keyField))
	}
	keyString, err := partitionKeyString(key)
	if err != nil {
		return err
	}
	wb, err := p.childFor(keyString)
	if err != nil {
		return err
	}
	return wb.Append([]Item{item})
}

// AppendMany extracts partition keys item-by-item and groups contiguous runs
// of the same key into a single child Append call.
func (p *Partitioner) AppendMany(items []Item) error {
	i := 0
	for i < len(items) {
		key, ok := items[i][p.keyField]
		if !ok {
			return schemaMismatch(fmt.Sprintf("item missing partition key field %q", p.keyField))
		}
		keyString, err := partitionKeyString(key)
		if err != nil {
			return err
		}
		j := i + 1
		for j < len(items) {
			nextKey, ok := items[j][p.keyField]
			if !ok {
				break
			}
			nextKeyString, err := partitionKeyString(nextKey)
			if err != nil || nextKeyString != keyString {
				break
			}
			j++
		}
		wb, err := p.childFor(keyString)
		if err != nil {
			return err
		}
		if err := wb.Append(items[i:j]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// childByKey resolves an existing child for a typed key, without creating
// one, for use by read operations.
func (p *Partitioner) childByKey(key any) (*WriteBuffer, error) {
	keyString, err := partitionKeyString(key)
	if err != nil {
		return nil, err
	}
	dirName := partitionDirName(keyString, p.cfg.PartitionHashAlgorithm)

	p.mu.Lock()
	wb, ok := p.children[dirName]
	p.mu.Unlock()
	if !ok {
		return nil, outOfRange("Partitioner.ReadBulk", fmt.Sprintf("unknown partition %q", sanitizedKeyPreview(keyString)))
	}
	return wb, nil
}

// ReadBulk returns take consecutive items from the single child partition
// named by key.
func (p *Partitioner) ReadBulk(key any, from, take int64) ([]Item, error) {
	wb, err := p.childByKey(key)
	if err != nil {
		return nil, err
	}
	return wb.ReadBulk(from, take)
}

// ReadAll concatenates read_bulk(0, count) across every child, in the order
// children were first created or discovered.
func (p *Partitioner) ReadAll() ([]Item, error) {
	p.mu.Lock()
	order := append([]string(nil), p.order...)
	children := make([]*WriteBuffer, len(order))
	for i, dirName := range order {
		children[i] = p.children[dirName]
	}
	p.mu.Unlock()

	var out []Item
	for _, wb := range children {
		count, err := wb.Count()
		if err != nil {
			return nil, err
		}
		if count == 0 {
			continue
		}
		items, err := wb.ReadBulk(0, count)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// PartitionsCount returns the number of partitions currently materialized.
func (p *Partitioner) PartitionsCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.children)
}

// Sync awaits every child's WriteBuffer.
func (p *Partitioner) Sync() error {
	p.mu.Lock()
	children := make([]*WriteBuffer, 0, len(p.children))
	for _, wb := range p.children {
		children = append(children, wb)
	}
	p.mu.Unlock()

	for _, wb := range children {
		if err := wb.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// PartitionerStats reports per-partition statistics.
type PartitionerStats struct {
	PartitionsCount int
	Partitions      map[string]WriteBufferStats
}

// Statistics reports statistics for every current partition.
func (p *Partitioner) Statistics() PartitionerStats {
	p.mu.Lock()
	children := make(map[string]*WriteBuffer, len(p.children))
	for k, v := range p.children {
		children[k] = v
	}
	p.mu.Unlock()

	stats := make(map[string]WriteBufferStats, len(children))
	for k, wb := range children {
		stats[k] = wb.Statistics()
	}
	return PartitionerStats{PartitionsCount: len(children), Partitions: stats}
}

// Delete tears down every child partition.
func (p *Partitioner) Delete() error {
	p.mu.Lock()
	children := make([]*WriteBuffer, 0, len(p.children))
	for _, wb := range p.children {
		children = append(children, wb)
	}
	p.children = make(map[string]*WriteBuffer)
	p.order = nil
	p.mu.Unlock()

	for _, wb := range children {
		if err := wb.Delete(); err != nil {
			return err
		}
	}
	return os.RemoveAll(p.dir)
}

// Close releases every child's resources without deleting any data.
func (p *Partitioner) Close() error {
	p.mu.Lock()
	children := make([]*WriteBuffer, 0, len(p.children))
	for _, wb := range p.children {
		children = append(children, wb)
	}
	p.mu.Unlock()

	for _, wb := range children {
		if err := wb.Close(); err != nil {
			return err
		}
	}
	return nil
}
