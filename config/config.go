// Package config handles klingnet-ledger configuration.
//
// Settings come from three layers, later ones winning: built-in defaults,
// the key = value config file, then KLINGNET_LEDGER_* environment variables
// and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Backend selects the key-value engine ledgers are stored in.
type Backend string

const (
	BackendBadger Backend = "badger" // One Badger database per ledger directory.
	BackendMemory Backend = "memory" // Process-local; nothing survives exit.
)

// ConfigFileName is the name of the config file inside the root directory.
const ConfigFileName = "klingnet-ledger.conf"

// Config holds the tool's runtime configuration.
type Config struct {
	RootDir string  `conf:"rootdir"`
	Backend Backend `conf:"backend"`

	Log     LogConfig
	Cache   CacheConfig
	Verify  VerifyConfig
	Metrics MetricsConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// CacheConfig sizes the per-ledger raw block cache.
type CacheConfig struct {
	Blocks int `conf:"cache.blocks"` // 0 disables the cache
}

// VerifyConfig holds chain verification settings.
type VerifyConfig struct {
	MaxBlocks int `conf:"verify.maxblocks"` // 0 walks the whole chain
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `conf:"metrics.addr"` // empty disables the endpoint
}

// DefaultRootDir returns the platform-specific default root directory.
//
//	Linux:   ~/.klingnet-ledger
//	macOS:   ~/Library/Application Support/KlingnetLedger
//	Windows: %APPDATA%\KlingnetLedger
func DefaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-ledger"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetLedger")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetLedger")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetLedger")
	default:
		return filepath.Join(home, ".klingnet-ledger")
	}
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.RootDir, ConfigFileName)
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.RootDir, "logs")
}
