package config

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

const AntiEntropyProtocol = "anti-entropy"

var knownProtocols = mapset.NewSet(AntiEntropyProtocol)

var defaultGossip = GossipConfig{
	Protocol:   AntiEntropyProtocol,
	IntervalMs: 500,
	Fanout:     2,
}

var defaultReplication = ReplicationConfig{
	Shards: 64,
}

var defaultSimulation = SimulationConfig{
	Replicas:   3,
	Operations: 30,
	Keys:       []string{"cart", "tags"},
	Values:     []string{"apple", "pear", "plum", "fig"},
	MaxRounds:  20,
}

func Default() *Config {
	cfg := &Config{
		Gossip:      defaultGossip,
		Replication: defaultReplication,
	}
	cfg.PopulateDefaults()
	return cfg
}

func (c *NodeConfig) PopulateDefaults() {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
}

func (c *GossipConfig) PopulateDefaults() {
	if c.Protocol == "" {
		c.Protocol = defaultGossip.Protocol
	}

	if c.IntervalMs == 0 {
		c.IntervalMs = defaultGossip.IntervalMs
	}

	if c.Fanout == 0 {
		c.Fanout = defaultGossip.Fanout
	}
}

func (c *ReplicationConfig) PopulateDefaults() {
	if c.Deduplicate == nil {
		enabled := true
		c.Deduplicate = &enabled
	}

	if c.Shards == 0 {
		c.Shards = defaultReplication.Shards
	}
}

func (c *SimulationConfig) PopulateDefaults() {
	if c.Replicas == 0 {
		c.Replicas = defaultSimulation.Replicas
	}

	if c.Operations == 0 {
		c.Operations = defaultSimulation.Operations
	}

	if len(c.Keys) == 0 {
		c.Keys = append([]string(nil), defaultSimulation.Keys...)
	}

	if len(c.Values) == 0 {
		c.Values = append([]string(nil), defaultSimulation.Values...)
	}

	if c.MaxRounds == 0 {
		c.MaxRounds = defaultSimulation.MaxRounds
	}
}

func (c *Config) PopulateDefaults() {
	c.Node.PopulateDefaults()
	c.Gossip.PopulateDefaults()
	c.Replication.PopulateDefaults()
	c.Simulation.PopulateDefaults()
}
