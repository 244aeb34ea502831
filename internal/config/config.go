// Package config loads the node's YAML configuration file and applies
// environment-variable overrides, the same two-stage pattern the server
// has always used: defaulted struct literal, then yaml.Unmarshal on top,
// then env overrides for the handful of settings ops commonly wants to
// override at deploy time without editing the file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Erasure ErasureConfig `yaml:"erasure"`
	Placement PlacementConfig `yaml:"placement"`
	Topology TopologyConfig `yaml:"topology"`
	Detector DetectorConfig `yaml:"detector"`
	Cache CacheConfig `yaml:"cache"`
	Registry RegistryConfig `yaml:"registry"`
	Migration MigrationConfig `yaml:"migration"`
	Events EventsConfig `yaml:"events"`
	Debug bool `yaml:"debug"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
	Port int `yaml:"port"`
	ShutdownTimeoutSecs int `yaml:"shutdown_timeout_secs"`
}

type StorageConfig struct {
	DiskRoots []string `yaml:"disk_roots"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: info)
}

type ErasureConfig struct {
	DataShards int `yaml:"data_shards"`
	ParityShards int `yaml:"parity_shards"`
}

type PlacementConfig struct {
	VirtualNodes int `yaml:"virtual_nodes"`
}

type TopologyConfig struct {
	FilePath string `yaml:"file_path"`
	DeploymentID string `yaml:"deployment_id"`
}

type DetectorConfig struct {
	ProbeIntervalSecs int `yaml:"probe_interval_secs"`
	SuspectAfter int `yaml:"suspect_after"`
	DownAfter int `yaml:"down_after"`
	ProbeTimeoutSecs int `yaml:"probe_timeout_secs"`
}

type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
	TTLSecs int `yaml:"ttl_secs"`
}

type RegistryConfig struct {
	Enabled bool `yaml:"enabled"`
	NodeID string `yaml:"node_id"`
	BindAddr string `yaml:"bind_addr"`
	RaftPort int `yaml:"raft_port"`
	Peers []string `yaml:"peers"`
	Bootstrap bool `yaml:"bootstrap"`
	DataDir string `yaml:"data_dir"`
	SnapshotCount int `yaml:"snapshot_count"`
}

type MigrationConfig struct {
	PoolSize int `yaml:"pool_size"`
	QueueCapacity int `yaml:"queue_capacity"`
	RateBytesPerSec int64 `yaml:"rate_bytes_per_sec"`
	BurstBytes int64 `yaml:"burst_bytes"`
	CheckpointPath string `yaml:"checkpoint_path"`
}

type EventsConfig struct {
	Kafka KafkaEventsConfig `yaml:"kafka"`
	NATS NATSEventsConfig `yaml:"nats"`
	Redis RedisEventsConfig `yaml:"redis"`
}

type KafkaEventsConfig struct {
	Enabled bool `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic string `yaml:"topic"`
}

type NATSEventsConfig struct {
	Enabled bool `yaml:"enabled"`
	URL string `yaml:"url"`
	Subject string `yaml:"subject"`
	RateControlSubject string `yaml:"rate_control_subject"`
}

type RedisEventsConfig struct {
	Enabled bool `yaml:"enabled"`
	Addr string `yaml:"addr"`
	ProgressChan string `yaml:"progress_channel"`
	RateControlKey string `yaml:"rate_control_key"`
}

// Load reads and parses path, applying defaults before YAML unmarshal so
// unset fields keep sane values, then environment overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port: 9000,
			ShutdownTimeoutSecs: 30,
		},
		Erasure: ErasureConfig{
			DataShards: 8,
			ParityShards: 4,
		},
		Placement: PlacementConfig{
			VirtualNodes: 128,
		},
		Topology: TopologyConfig{
			FilePath: "./topology.json",
		},
		Detector: DetectorConfig{
			ProbeIntervalSecs: 5,
			SuspectAfter: 3,
			DownAfter: 6,
			ProbeTimeoutSecs: 2,
		},
		Cache: CacheConfig{
			MaxEntries: 10000,
			TTLSecs: 300,
		},
		Registry: RegistryConfig{
			DataDir: "./registry",
			SnapshotCount: 8192,
		},
		Migration: MigrationConfig{
			PoolSize: 16,
			QueueCapacity: 10000,
			CheckpointPath: "./migration-checkpoint.json",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if len(cfg.Storage.DiskRoots) == 0 {
		return nil, fmt.Errorf("storage.disk_roots must name at least one disk root")
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRIDSTORE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("GRIDSTORE_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("GRIDSTORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GRIDSTORE_REGISTRY_NODE_ID"); v != "" {
		cfg.Registry.NodeID = v
	}
	if v := os.Getenv("GRIDSTORE_REGISTRY_BIND_ADDR"); v != "" {
		cfg.Registry.BindAddr = v
	}
	if v := os.Getenv("GRIDSTORE_REGISTRY_RAFT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Registry.RaftPort = p
		}
	}
	if v := os.Getenv("GRIDSTORE_REGISTRY_DATA_DIR"); v != "" {
		cfg.Registry.DataDir = v
	}
	if v := os.Getenv("GRIDSTORE_MIGRATION_RATE_BYTES_PER_SEC"); v != "" {
		if r, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Migration.RateBytesPerSec = r
		}
	}
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
