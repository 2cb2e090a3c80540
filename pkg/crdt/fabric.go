package crdt

import (
	"fmt"

	"github.com/google/uuid"
)

var ErrCRDTNotFound = fmt.Errorf("crdt not found")

var constructors = map[string]CRDTConstructor{
	LWWSetName: func(id uuid.UUID) CRDT {
		return NewLWWSet(id)
	},
}

type fabric struct {
}

func NewFabric() CRDTFabric {
	return &fabric{}
}

func (f *fabric) New(name string, id uuid.UUID) (CRDT, error) {
	constructor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCRDTNotFound, name)
	}
	return constructor(id), nil
}
