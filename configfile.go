// LoadConfigFile reads a Config from a YAML document, so the recognized
// options of spec §6 can be checked into version control instead of built
// up in code.
//
// github.com/jpl-au/recordstore is a library; this is ambient configuration
// tooling, not a command-line entry point.
package recordstore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// configFile mirrors Config's field names in their spec §6 option-name
// spelling.
type configFile struct {
	InitialFileSize        int64  `yaml:"initial_file_size"`
	PageSize               int64  `yaml:"page_size"`
	MaxCachedPages         int    `yaml:"max_cached_pages"`
	HotPrefix              int    `yaml:"hot_prefix"`
	WriteBufferMaxItems    int    `yaml:"write_buffer_max_items"`
	CooldownInitialMs      int64  `yaml:"write_buffer_cooldown_initial_ms"`
	CooldownMaxMs          int64  `yaml:"write_buffer_cooldown_max_ms"`
	AsEnumerablePageSize   int    `yaml:"as_enumerable_page_size"`
	PartitionHashAlgorithm string `yaml:"partition_hash_algorithm"`
}

// LoadConfigFile reads path as YAML and returns a Config with every absent
// or zero option left at its documented default.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("recordstore: reading config file %q: %w", path, err)
	}

	var raw configFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("%w: config file %q: %v", ErrInvalidConfig, path, err)
	}

	cfg := Config{
		Cache: CacheConfig{
			InitialFileSize: raw.InitialFileSize,
			PageSize:        raw.PageSize,
			MaxCachedPages:  raw.MaxCachedPages,
			HotPrefix:       raw.HotPrefix,
		},
		Buffer: BufferConfig{
			MaxItems:          raw.WriteBufferMaxItems,
			CooldownInitialMs: raw.CooldownInitialMs,
			CooldownMaxMs:     raw.CooldownMaxMs,
		},
		AsEnumerablePageSize: raw.AsEnumerablePageSize,
	}
	if raw.PartitionHashAlgorithm != "" {
		alg, err := hashAlgorithmFromString(raw.PartitionHashAlgorithm)
		if err != nil {
			return Config{}, err
		}
		cfg.PartitionHashAlgorithm = alg
	}

	return cfg.withDefaults(), nil
}

func hashAlgorithmFromString(s string) (HashAlgorithm, error) {
	switch s {
	case "xxhash3", "":
		return HashXXHash3, nil
	case "fnv1a":
		return HashFNV1a, nil
	case "blake2b":
		return HashBlake2b, nil
	default:
		return 0, fmt.Errorf("%w: unknown partition_hash_algorithm %q", ErrInvalidConfig, s)
	}
}
