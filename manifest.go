// Partitioner manifest: a small JSON registry mapping each partition key
// string to the directory name it was stored under. On reopen the
// Partitioner reopens the directories the manifest lists; a key is matched
// to its directory by recomputing the name (see partitionkey.go), and the
// recorded key strings are not read back.
//
// Grounded on the teacher's use of goccy/go-json for its own on-disk
// documents and natefinch/atomic for crash-safe writes of small metadata
// files (the same pairing as the schema sidecar in schema_file.go).
package recordstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"
)

const manifestFileName = "manifest.json"

type manifestDoc struct {
	// Partitions maps partition key string to directory name.
	Partitions map[string]string `json:"partitions"`
}

type partitionManifest struct {
	path string

	mu      sync.Mutex
	entries map[string]string // key string -> dir name
}

func openPartitionManifest(dir string) (*partitionManifest, error) {
	path := filepath.Join(dir, manifestFileName)
	m := &partitionManifest{path: path, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("recordstore: reading partition manifest %q: %w", path, err)
	}
	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, decodeError(fmt.Sprintf("partition manifest %q: %v", path, err))
	}
	m.entries = doc.Partitions
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	return m, nil
}

// entriesSnapshot returns a copy of the current key->dir mapping.
func (m *partitionManifest) entriesSnapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// record adds keyString -> dirName and persists the manifest, unless it is
// already present.
func (m *partitionManifest) record(keyString, dirName string) error {
	m.mu.Lock()
	if existing, ok := m.entries[keyString]; ok && existing == dirName {
		m.mu.Unlock()
		return nil
	}
	m.entries[keyString] = dirName
	doc := manifestDoc{Partitions: make(map[string]string, len(m.entries))}
	for k, v := range m.entries {
		doc.Partitions[k] = v
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("recordstore: encoding partition manifest: %w", err)
	}
	if err := atomic.WriteFile(m.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("recordstore: writing partition manifest %q: %w", m.path, err)
	}
	return nil
}
