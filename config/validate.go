package config

import (
	"fmt"
)

var validLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
	"panic": true,
}

// Validate checks config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.RootDir == "" {
		return fmt.Errorf("rootdir must not be empty")
	}
	switch cfg.Backend {
	case BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendBadger, BackendMemory, cfg.Backend)
	}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}
	if cfg.Cache.Blocks < 0 {
		return fmt.Errorf("cache.blocks must be >= 0")
	}
	if cfg.Verify.MaxBlocks < 0 {
		return fmt.Errorf("verify.maxblocks must be >= 0")
	}
	return nil
}
