package config

import "fmt"

func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigIsNil
	}
	if err := c.Node.Validate(); err != nil {
		return err
	}
	if err := c.Gossip.Validate(); err != nil {
		return err
	}
	if err := c.Replication.Validate(); err != nil {
		return err
	}
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *NodeConfig) Validate() error {
	return nil
}

func (c *GossipConfig) Validate() error {

	if !knownProtocols.Contains(c.Protocol) {
		return fmt.Errorf("%w: %q", ErrUnknownProtocol, c.Protocol)
	}

	if c.IntervalMs <= 0 {
		return ErrInvalidInterval
	}

	if c.Fanout <= 0 {
		return ErrInvalidFanout
	}
	return nil
}

func (c *ReplicationConfig) Validate() error {
	if c.Shards <= 0 || c.Shards&(c.Shards-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShards, c.Shards)
	}
	return nil
}

func (c *SimulationConfig) Validate() error {
	if c.Replicas <= 0 {
		return ErrInvalidReplicas
	}
	if c.Operations < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOperations, c.Operations)
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRounds, c.MaxRounds)
	}
	if len(c.Keys) == 0 || len(c.Values) == 0 {
		return ErrMissingValues
	}
	return nil
}
