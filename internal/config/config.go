// Package config is the thin external-collaborator loader named in spec §6:
// it reads CONCORD_DEFAULT_ENGINE / CONCORD_LISTEN_PORT / CONCORD_DATA_DIR
// (plus engine/LSM/cache tuning env vars and an optional YAML overlay) far
// enough to construct an engine.Manager. It mirrors the teacher's
// options-struct-plus-functional-defaults pattern
// (pkg/lsm.LSMOptions/DefaultLSMOptions) rather than a bespoke flag set.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/concordkv/concordkv/internal/cache"
	"github.com/concordkv/concordkv/internal/engine"
	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/lsm"
)

// Config is the full set of tunables the external collaborators (CLI,
// server) need to construct a working engine.Manager. Struct tags drive
// go-playground/validator the same way the teacher's pkg/validation does
// for its request types.
type Config struct {
	DefaultEngine string `yaml:"default_engine" validate:"required,oneof=array rbtree hash btree lsm"`
	ListenPort    int    `yaml:"listen_port" validate:"gte=0,lte=65535"`
	DataDir       string `yaml:"data_dir" validate:"required"`

	MemtableMaxSize   int     `yaml:"memtable_max_size" validate:"gt=0"`
	MaxImmutableCount int     `yaml:"max_immutable_count" validate:"gt=0"`
	WorkerCount       int     `yaml:"worker_count" validate:"gt=0"`
	SyncWrites        bool    `yaml:"sync_writes"`
	CachePolicy       string  `yaml:"cache_policy" validate:"oneof=lru lfu fifo random clock arc"`
	CacheMaxEntries   int     `yaml:"cache_max_entries" validate:"gt=0"`
	CacheMaxBytes     int64   `yaml:"cache_max_bytes" validate:"gt=0"`
	CacheEvictFactor  float64 `yaml:"cache_eviction_factor" validate:"gt=0,lt=1"`
}

// Default returns the baseline configuration before env/YAML overlays are
// applied, scaled from lsm.DefaultOptions/cache defaults.
func Default(dataDir string) Config {
	lopts := lsm.DefaultOptions(dataDir)
	return Config{
		DefaultEngine:     "lsm",
		ListenPort:        8080,
		DataDir:           dataDir,
		MemtableMaxSize:   lopts.Memtable.MemtableMaxSize,
		MaxImmutableCount: lopts.Memtable.MaxImmutableCount,
		WorkerCount:       lopts.WorkerCount,
		SyncWrites:        lopts.SyncWrites,
		CachePolicy:       "lru",
		CacheMaxEntries:   10_000,
		CacheMaxBytes:     64 << 20,
		CacheEvictFactor:  0.1,
	}
}

// Load builds a Config from Default(dataDir), an optional YAML file
// layered on top, then CONCORD_* environment variables taking the final
// say — the same precedence order (defaults < file < env) the teacher's
// server main.go applies for PORT/data-dir flags.
func Load(yamlPath string) (Config, error) {
	dataDir := os.Getenv("CONCORD_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	cfg := Default(dataDir)

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, errs.Wrap(errs.IOError, "config.Load", "reading "+yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errs.Wrap(errs.InvalidParam, "config.Load", "parsing "+yamlPath, err)
		}
	}

	applyEnv(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return Config{}, errs.Wrap(errs.InvalidParam, "config.Load", "validating configuration", err)
	}
	return cfg, nil
}

var validate = validator.New()

func applyEnv(cfg *Config) {
	if v := os.Getenv("CONCORD_DEFAULT_ENGINE"); v != "" {
		cfg.DefaultEngine = v
	}
	if v := os.Getenv("CONCORD_LISTEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ListenPort = p
		}
	}
	if v := os.Getenv("CONCORD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CONCORD_MEMTABLE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MemtableMaxSize = n
		}
	}
	if v := os.Getenv("CONCORD_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerCount = n
		}
	}
	if v := os.Getenv("CONCORD_SYNC_WRITES"); v != "" {
		cfg.SyncWrites = v == "true" || v == "1"
	}
	if v := os.Getenv("CONCORD_CACHE_POLICY"); v != "" {
		cfg.CachePolicy = v
	}
}

// EngineType resolves DefaultEngine to an engine.Type.
func (c Config) EngineType() (engine.Type, error) {
	switch c.DefaultEngine {
	case "array":
		return engine.Array, nil
	case "rbtree":
		return engine.RBTree, nil
	case "hash":
		return engine.Hash, nil
	case "btree":
		return engine.BTree, nil
	case "lsm":
		return engine.LSM, nil
	default:
		return 0, errs.New(errs.InvalidParam, "Config.EngineType", "unknown engine "+c.DefaultEngine)
	}
}

// LSMOptions builds an lsm.Options from the loaded Config, anchored at
// lsm.DefaultOptions(c.DataDir) for every field Config doesn't expose.
func (c Config) LSMOptions() lsm.Options {
	opts := lsm.DefaultOptions(c.DataDir)
	opts.SyncWrites = c.SyncWrites
	opts.WorkerCount = c.WorkerCount
	opts.Memtable.MemtableMaxSize = c.MemtableMaxSize
	opts.Memtable.MaxImmutableCount = c.MaxImmutableCount
	return opts
}

// CacheOptions builds a cache.Options from the loaded Config.
func (c Config) CacheOptions() cache.Options {
	policy := cache.LRU
	switch c.CachePolicy {
	case "lfu":
		policy = cache.LFU
	case "fifo":
		policy = cache.FIFO
	case "random":
		policy = cache.Random
	case "clock":
		policy = cache.Clock
	case "arc":
		policy = cache.ARC
	}
	return cache.Options{
		Policy:           policy,
		MaxEntries:       c.CacheMaxEntries,
		MaxBytes:         c.CacheMaxBytes,
		EvictionFactor:   c.CacheEvictFactor,
		MinEvictionCount: 1,
		MaxEvictionCount: c.CacheMaxEntries,
		DefaultTTL:       0,
		SweepInterval:    time.Minute,
	}
}
