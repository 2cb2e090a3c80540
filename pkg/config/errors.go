package config

import "errors"

var ErrUnknownProtocol = errors.New("unknown protocol")
var ErrInvalidInterval = errors.New("gossip interval must be positive")
var ErrInvalidFanout = errors.New("gossip fanout must be positive")
var ErrInvalidShards = errors.New("shard count must be a power of two")
var ErrInvalidReplicas = errors.New("simulation needs at least one replica")
var ErrInvalidOperations = errors.New("simulation operations must not be negative")
var ErrInvalidMaxRounds = errors.New("simulation max_rounds must be positive")
var ErrMissingValues = errors.New("simulation needs keys and values")
var ErrConfigIsNil = errors.New("config is nil")
