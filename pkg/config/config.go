package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Node        NodeConfig        `yaml:"node"`
	Gossip      GossipConfig      `yaml:"gossip"`
	Replication ReplicationConfig `yaml:"replication"`
	Simulation  SimulationConfig  `yaml:"simulation"`
}

type NodeConfig struct {
	ID string `yaml:"id"`
}

type GossipConfig struct {
	Protocol   string `yaml:"protocol"`
	IntervalMs int    `yaml:"interval_ms"`
	Fanout     int    `yaml:"fanout"`
}

type ReplicationConfig struct {
	// Deduplicate отбрасывает повторные события при слиянии
	Deduplicate *bool `yaml:"deduplicate"`
	Shards      int   `yaml:"shards"`
}

// SimulationConfig описывает демонстрационный прогон в cmd.
type SimulationConfig struct {
	Replicas   int      `yaml:"replicas"`
	Operations int      `yaml:"operations"`
	Keys       []string `yaml:"keys"`
	Values     []string `yaml:"values"`
	MaxRounds  int      `yaml:"max_rounds"`
}

func (c *GossipConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

func (c *ReplicationConfig) DeduplicateEnabled() bool {
	return c.Deduplicate == nil || *c.Deduplicate
}

func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// Load reads, fills defaults and validates the config in one go.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	cfg.PopulateDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
