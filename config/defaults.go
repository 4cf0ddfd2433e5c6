package config

// DefaultCacheBlocks is the default number of raw blocks cached per ledger.
const DefaultCacheBlocks = 1024

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		RootDir: DefaultRootDir(),
		Backend: BackendBadger,
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Cache: CacheConfig{
			Blocks: DefaultCacheBlocks,
		},
	}
}
