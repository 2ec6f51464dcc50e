package recordstore

import "fmt"

// Default configuration values, per spec §6.
const (
	DefaultInitialFileSize     = 16 << 20 // 16 MiB
	DefaultPageSize            = 16 << 20 // 16 MiB
	DefaultMaxCachedPages      = 64
	DefaultHotPrefix           = 8
	DefaultWriteBufferMaxItems = 8192
	DefaultCooldownInitialMs   = 1000
	DefaultCooldownMaxMs       = 16000
	DefaultEnumerablePageSize  = 4096
)

// CacheConfig configures the PagedCache layered over a FileAccess.
type CacheConfig struct {
	// InitialFileSize is the size a backing file is created at if absent.
	InitialFileSize int64
	// PageSize is the fixed page size of the cache, and the growth quantum
	// FileAccess grows the backing file by on out-of-range writes.
	PageSize int64
	// MaxCachedPages bounds the resident page set.
	MaxCachedPages int
	// HotPrefix is the size of the promotion-exempt tail of the LRU list.
	HotPrefix int
}

// DefaultCacheConfig returns the spec's recognized defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		InitialFileSize: DefaultInitialFileSize,
		PageSize:        DefaultPageSize,
		MaxCachedPages:  DefaultMaxCachedPages,
		HotPrefix:       DefaultHotPrefix,
	}
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.InitialFileSize <= 0 {
		c.InitialFileSize = DefaultInitialFileSize
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxCachedPages <= 0 {
		c.MaxCachedPages = DefaultMaxCachedPages
	}
	if c.HotPrefix <= 0 {
		c.HotPrefix = DefaultHotPrefix
	}
	if c.HotPrefix > c.MaxCachedPages {
		c.HotPrefix = c.MaxCachedPages
	}
	return c
}

func (c CacheConfig) validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("%w: page size must be positive", ErrInvalidConfig)
	}
	if c.MaxCachedPages <= 0 {
		return fmt.Errorf("%w: max cached pages must be positive", ErrInvalidConfig)
	}
	return nil
}

// BufferConfig configures a WriteBuffer.
type BufferConfig struct {
	// MaxItems bounds the active queue. Appenders block while the buffer is
	// Hot and admitting their items would bring the active queue to this
	// count or beyond.
	MaxItems int
	// CooldownInitialMs is the writer's initial inter-flush sleep.
	CooldownInitialMs int64
	// CooldownMaxMs caps the inter-flush sleep.
	CooldownMaxMs int64
}

// DefaultBufferConfig returns the spec's recognized defaults.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MaxItems:          DefaultWriteBufferMaxItems,
		CooldownInitialMs: DefaultCooldownInitialMs,
		CooldownMaxMs:     DefaultCooldownMaxMs,
	}
}

func (c BufferConfig) withDefaults() BufferConfig {
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultWriteBufferMaxItems
	}
	if c.CooldownInitialMs <= 0 {
		c.CooldownInitialMs = DefaultCooldownInitialMs
	}
	if c.CooldownMaxMs <= 0 {
		c.CooldownMaxMs = DefaultCooldownMaxMs
	}
	if c.CooldownMaxMs < c.CooldownInitialMs {
		c.CooldownMaxMs = c.CooldownInitialMs
	}
	return c
}

// Config is the top-level configuration recognized by Bucket, WriteBuffer,
// and Partitioner construction.
type Config struct {
	Cache                CacheConfig
	Buffer               BufferConfig
	AsEnumerablePageSize int

	// PartitionHashAlgorithm selects the algorithm used to derive a
	// filesystem-safe directory name for a partition key that is not
	// already a safe path segment. See partitionkey.go.
	PartitionHashAlgorithm HashAlgorithm
}

// DefaultConfig returns the spec's recognized defaults.
func DefaultConfig() Config {
	return Config{
		Cache:                DefaultCacheConfig(),
		Buffer:               DefaultBufferConfig(),
		AsEnumerablePageSize:   DefaultEnumerablePageSize,
		PartitionHashAlgorithm: HashXXHash3,
	}
}

func (c Config) withDefaults() Config {
	c.Cache = c.Cache.withDefaults()
	c.Buffer = c.Buffer.withDefaults()
	if c.AsEnumerablePageSize <= 0 {
		c.AsEnumerablePageSize = DefaultEnumerablePageSize
	}
	if c.PartitionHashAlgorithm == 0 {
		c.PartitionHashAlgorithm = HashXXHash3
	}
	return c
}
