package crdt

import (
	"github.com/google/uuid"
)

// CRDTFabric строит реплики по имени типа.
type CRDTFabric interface {
	New(name string, id uuid.UUID) (CRDT, error)
}

// CRDT — state-based реплика, которую можно сливать и пересылать.
type CRDT interface {
	// Merge absorbs the full state of another replica of the same type.
	Merge(other CRDT) error

	// ApplyDelta absorbs a shipped part of another replica's state.
	ApplyDelta(delta Delta) error

	MarshalJSON() ([]byte, error)
	UnmarshalJSON(data []byte) error

	Type() string
}

type Delta interface {
	MarshalJSON() ([]byte, error)
	UnmarshalJSON(data []byte) error
	Type() string
}

type CRDTConstructor func(id uuid.UUID) CRDT

var (
	_ CRDT  = (*LWWSet)(nil)
	_ Delta = (*LWWSetDelta)(nil)
)
