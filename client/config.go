package client

import (
	"time"

	"github.com/janelia-flyem/omerokv/omerokv"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultNameCacheMB  = 4
	DefaultNameCacheTTL = 300 // seconds
)

// Config is the [client] section of the TOML configuration.
type Config struct {
	Host     string // base URL, e.g. "https://images.example.org"
	User     string
	Password string

	TimeoutSecs  int     `toml:"timeout_secs"`
	RateLimit    float64 `toml:"rate_limit"` // requests per second, 0 for unlimited
	Compression  string  // plane transfer compression: none, snappy, lz4, zstd
	NameCacheMB  int     `toml:"name_cache_mb"`
	NameCacheTTL int     `toml:"name_cache_ttl"` // seconds
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c Config) nameCacheBytes() int {
	if c.NameCacheMB <= 0 {
		return DefaultNameCacheMB * omerokv.Mega
	}
	return c.NameCacheMB * omerokv.Mega
}

func (c Config) nameCacheTTL() int {
	if c.NameCacheTTL <= 0 {
		return DefaultNameCacheTTL
	}
	return c.NameCacheTTL
}
