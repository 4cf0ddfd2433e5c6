package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KLINGNET_LEDGER_LOG_LEVEL.
const EnvPrefix = "KLINGNET_LEDGER"

// Keys, as written in the config file.
const (
	KeyRootDir     = "rootdir"
	KeyBackend     = "backend"
	KeyLogLevel    = "log.level"
	KeyLogFile     = "log.file"
	KeyLogJSON     = "log.json"
	KeyCacheBlocks = "cache.blocks"
	KeyVerifyMax   = "verify.maxblocks"
	KeyMetricsAddr = "metrics.addr"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"root-dir":     KeyRootDir,
	"backend":      KeyBackend,
	"log-level":    KeyLogLevel,
	"log-file":     KeyLogFile,
	"log-json":     KeyLogJSON,
	"cache-blocks": KeyCacheBlocks,
	"max-blocks":   KeyVerifyMax,
	"metrics-addr": KeyMetricsAddr,
}

// Load builds a Config from defaults, the config file at path, the
// environment and flags, in that order of precedence (flags win).
//
// A missing file is not an error. An empty path skips the file. Only flags
// in flags that were explicitly set override lower layers; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	def := Default()
	v := viper.New()
	v.SetDefault(KeyRootDir, def.RootDir)
	v.SetDefault(KeyBackend, string(def.Backend))
	v.SetDefault(KeyLogLevel, def.Log.Level)
	v.SetDefault(KeyLogFile, def.Log.File)
	v.SetDefault(KeyLogJSON, def.Log.JSON)
	v.SetDefault(KeyCacheBlocks, def.Cache.Blocks)
	v.SetDefault(KeyVerifyMax, def.Verify.MaxBlocks)
	v.SetDefault(KeyMetricsAddr, def.Metrics.Addr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("properties")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{
		RootDir: expandHome(v.GetString(KeyRootDir)),
		Backend: Backend(strings.ToLower(v.GetString(KeyBackend))),
		Log: LogConfig{
			Level: strings.ToLower(v.GetString(KeyLogLevel)),
			File:  expandHome(v.GetString(KeyLogFile)),
			JSON:  v.GetBool(KeyLogJSON),
		},
		Cache:   CacheConfig{Blocks: v.GetInt(KeyCacheBlocks)},
		Verify:  VerifyConfig{MaxBlocks: v.GetInt(KeyVerifyMax)},
		Metrics: MetricsConfig{Addr: v.GetString(KeyMetricsAddr)},
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// WriteDefaultConfig writes a commented default config file.
func WriteDefaultConfig(path string) error {
	content := `# klingnet-ledger configuration
#
# Every key can also be set through the environment, e.g.
# KLINGNET_LEDGER_LOG_LEVEL=debug. Command-line flags win over both.

# Root directory holding ledgers/ (default: ~/.klingnet-ledger)
# rootdir = ~/.klingnet-ledger

# Storage backend: badger or memory
backend = badger

# ============================================================================
# Storage
# ============================================================================

# Raw blocks cached per open ledger (0 disables)
cache.blocks = 1024

# ============================================================================
# Verification
# ============================================================================

# Stop a verification walk after this many blocks (0 = walk to genesis)
verify.maxblocks = 0

# ============================================================================
# Metrics
# ============================================================================

# Serve Prometheus metrics on this address while a command runs
# metrics.addr = 127.0.0.1:9465

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
