package jobstate

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the engine-level configuration for one partition's store.
// Engine tuning (memory budget, write buffers, SST/level sizing) maps
// directly onto EngineTuning; Dir and PartitionID select where the store
// lives and how its metrics are labeled.
type Config struct {
	// Dir is the database directory for this partition.
	Dir string `yaml:"dir"`

	// PartitionID labels this partition's metrics.
	PartitionID int `yaml:"partition_id"`

	// Tuning holds the RocksDB-derived sizing knobs.
	Tuning EngineTuning `yaml:"tuning"`
}

// yamlTuning mirrors EngineTuning with yaml tags; EngineTuning itself
// stays free of serialization tags since badgerengine.go treats it as a
// plain value type.
type yamlTuning struct {
	MemoryBudgetBytes   int64 `yaml:"memory_budget_bytes"`
	MaxWriteBuffers     int   `yaml:"max_write_buffers"`
	TargetSSTSizeBytes  int64 `yaml:"target_sst_size_bytes"`
	BaseLevelSizeBytes  int64 `yaml:"base_level_size_bytes"`
	LevelSizeMultiplier int   `yaml:"level_size_multiplier"`
	NumLevels           int   `yaml:"num_levels"`
	ManifestCapBytes    int64 `yaml:"manifest_cap_bytes"`
}

type yamlConfig struct {
	Dir         string     `yaml:"dir"`
	PartitionID int        `yaml:"partition_id"`
	Tuning      yamlTuning `yaml:"tuning"`
}

// LoadConfigFile reads a YAML config file into a typed struct, with unset
// tuning fields defaulting to DefaultEngineTuning's values.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Dir:         raw.Dir,
		PartitionID: raw.PartitionID,
		Tuning:      DefaultEngineTuning(),
	}
	if raw.Tuning.MemoryBudgetBytes > 0 {
		cfg.Tuning.MemoryBudgetBytes = raw.Tuning.MemoryBudgetBytes
	}
	if raw.Tuning.MaxWriteBuffers > 0 {
		cfg.Tuning.MaxWriteBuffers = raw.Tuning.MaxWriteBuffers
	}
	if raw.Tuning.TargetSSTSizeBytes > 0 {
		cfg.Tuning.TargetSSTSizeBytes = raw.Tuning.TargetSSTSizeBytes
	}
	if raw.Tuning.BaseLevelSizeBytes > 0 {
		cfg.Tuning.BaseLevelSizeBytes = raw.Tuning.BaseLevelSizeBytes
	}
	if raw.Tuning.LevelSizeMultiplier > 0 {
		cfg.Tuning.LevelSizeMultiplier = raw.Tuning.LevelSizeMultiplier
	}
	if raw.Tuning.NumLevels > 0 {
		cfg.Tuning.NumLevels = raw.Tuning.NumLevels
	}
	if raw.Tuning.ManifestCapBytes > 0 {
		cfg.Tuning.ManifestCapBytes = raw.Tuning.ManifestCapBytes
	}

	return cfg, nil
}

// LoadConfigEnv builds a Config from environment variables, for
// deployments that prefer env vars to a config file:
//   - JOBSTATE_DIR: database directory (required, no default)
//   - JOBSTATE_PARTITION_ID: partition id (default: 0)
//   - JOBSTATE_MEMORY_BUDGET_BYTES: memory budget (default: 512 MiB)
func LoadConfigEnv() (*Config, error) {
	dir := os.Getenv("JOBSTATE_DIR")
	if dir == "" {
		return nil, invalidArgumentf("JOBSTATE_DIR is required")
	}

	tuning := DefaultEngineTuning()
	tuning.MemoryBudgetBytes = getEnvInt64("JOBSTATE_MEMORY_BUDGET_BYTES", tuning.MemoryBudgetBytes)

	return &Config{
		Dir:         dir,
		PartitionID: getEnvInt("JOBSTATE_PARTITION_ID", 0),
		Tuning:      tuning,
	}, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
