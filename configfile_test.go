package recordstore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigFileAppliesValuesAndDefaults(t *testing.T) {
	path := writeConfigFile(t, `
page_size: 1048576
max_cached_pages: 32
partition_hash_algorithm: fnv1a
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Cache.PageSize != 1048576 {
		t.Errorf("Cache.PageSize = %d, want 1048576", cfg.Cache.PageSize)
	}
	if cfg.Cache.MaxCachedPages != 32 {
		t.Errorf("Cache.MaxCachedPages = %d, want 32", cfg.Cache.MaxCachedPages)
	}
	if cfg.PartitionHashAlgorithm != HashFNV1a {
		t.Errorf("PartitionHashAlgorithm = %v, want HashFNV1a", cfg.PartitionHashAlgorithm)
	}
	// Unspecified options fall back to the documented defaults.
	if cfg.Buffer.MaxItems != DefaultWriteBufferMaxItems {
		t.Errorf("Buffer.MaxItems = %d, want default %d", cfg.Buffer.MaxItems, DefaultWriteBufferMaxItems)
	}
}

func TestLoadConfigFileRejectsUnknownHashAlgorithm(t *testing.T) {
	path := writeConfigFile(t, "partition_hash_algorithm: md5\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("LoadConfigFile with an unknown hash algorithm succeeded, want error")
	}
}

func TestLoadConfigFileMissingFile(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfigFile on a missing file succeeded, want error")
	}
}
