// Package config carries the engine configuration. Every key of the sql.*
// namespace maps to one field; values load from YAML files and fall back to
// the documented defaults.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	// scheduling
	ThreadPoolSize       int  `yaml:"thread_pool_size"`       // sql.thread_pool_size: worker pool size
	StealingEnabled      bool `yaml:"stealing_enabled"`       // sql.stealing_enabled
	StealingWait         int  `yaml:"stealing_wait"`          // sql.stealing_wait: local-queue checks before stealing
	TaskPollingWait      int  `yaml:"task_polling_wait"`      // sql.task_polling_wait: worker busy-loop wait (us)
	EnableHybrid         bool `yaml:"enable_hybrid_scheduler"` // sql.enable_hybrid_scheduler
	LightweightJobLevel  int  `yaml:"lightweight_job_level"`  // sql.lightweight_job_level
	BusyWorker           bool `yaml:"busy_worker"`            // sql.busy_worker: workers never suspend
	WorkerTryCount       int  `yaml:"worker_try_count"`       // sql.worker_try_count: queue checks before suspend
	WorkerSuspendTimeout int  `yaml:"worker_suspend_timeout"` // sql.worker_suspend_timeout (us)
	WatcherInterval      int  `yaml:"watcher_interval"`       // sql.watcher_interval (us)

	// worker placement
	CoreAffinity             bool `yaml:"core_affinity"`                // sql.core_affinity
	AssignNumaNodesUniformly bool `yaml:"assign_numa_nodes_uniformly"` // sql.assign_numa_nodes_uniformly
	InitialCore              int  `yaml:"initial_core"`                // sql.initial_core

	// scan
	ScanBlockSize       int `yaml:"scan_block_size"`       // sql.scan_block_size: records per yield
	ScanYieldInterval   int `yaml:"scan_yield_interval"`   // sql.scan_yield_interval (ms)
	ScanDefaultParallel int `yaml:"scan_default_parallel"` // sql.scan_default_parallel

	// exchange
	DefaultPartitions int `yaml:"default_partitions"` // sql.default_partitions

	// type system toggles
	SupportSmallint bool `yaml:"support_smallint"` // sql.support_smallint: enables int1/int2 casts
	SupportBoolean  bool `yaml:"support_boolean"`  // sql.support_boolean: enables boolean casts
	EnableBlobCast  bool `yaml:"enable_blob_cast"` // sql.enable_blob_cast: enables blob/clob casts
}

// Default returns the configuration with every knob at its default.
func Default() *Config {
	return &Config{
		ThreadPoolSize:       4,
		StealingEnabled:      true,
		StealingWait:         1,
		TaskPollingWait:      0,
		EnableHybrid:         false,
		LightweightJobLevel:  0,
		BusyWorker:           false,
		WorkerTryCount:       1000,
		WorkerSuspendTimeout: 1000,
		WatcherInterval:      1000,
		ScanBlockSize:        100,
		ScanYieldInterval:    1,
		ScanDefaultParallel:  4,
		DefaultPartitions:    4,
		SupportSmallint:      false,
		SupportBoolean:       false,
		EnableBlobCast:       false,
	}
}

// Load reads a YAML file over the defaults. The file lists keys under a
// top-level sql section:
//
//	sql:
//	  thread_pool_size: 8
//	  scan_block_size: 500
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(raw)
}

// Parse decodes YAML content over the defaults.
func Parse(raw []byte) (*Config, error) {
	var file struct {
		SQL *Config `yaml:"sql"`
	}
	cfg := Default()
	file.SQL = cfg
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects impossible settings.
func (c *Config) Validate() error {
	if c.ThreadPoolSize <= 0 {
		return errors.New("thread_pool_size must be positive")
	}
	if c.ScanBlockSize <= 0 {
		return errors.New("scan_block_size must be positive")
	}
	if c.DefaultPartitions <= 0 {
		return errors.New("default_partitions must be positive")
	}
	if c.ScanDefaultParallel <= 0 {
		return errors.New("scan_default_parallel must be positive")
	}
	return nil
}

// ScanYield returns the scan yield interval as a duration.
func (c *Config) ScanYield() time.Duration {
	return time.Duration(c.ScanYieldInterval) * time.Millisecond
}

// SuspendTimeout returns the worker suspend timeout as a duration.
func (c *Config) SuspendTimeout() time.Duration {
	return time.Duration(c.WorkerSuspendTimeout) * time.Microsecond
}

// PollingWait returns the worker polling wait as a duration.
func (c *Config) PollingWait() time.Duration {
	return time.Duration(c.TaskPollingWait) * time.Microsecond
}
