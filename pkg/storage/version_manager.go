package storage

import (
	"sync"
	"sync/atomic"
)

// Version — счётчик изменений состояния реплики. Растёт при каждой локальной
// операции и при каждом слиянии, которое принесло новые события.
type Version struct {
	ReplicaID string `json:"replica_id"`
	Sequence  int64  `json:"sequence"`
}

type VersionManager struct {
	mutex   sync.RWMutex
	nodeID  string
	seq     atomic.Int64
	version map[string]Version
}

func NewVersionManager(nodeID string) *VersionManager {
	return &VersionManager{
		nodeID:  nodeID,
		version: make(map[string]Version),
	}
}

func (vm *VersionManager) Current() Version {
	return Version{ReplicaID: vm.nodeID, Sequence: vm.seq.Load()}
}

// GetVersion возвращает последнюю виденную версию реплики.
func (vm *VersionManager) GetVersion(replicaID string) Version {
	if replicaID == vm.nodeID {
		return vm.Current()
	}
	vm.mutex.RLock()
	defer vm.mutex.RUnlock()
	return vm.version[replicaID]
}

func (vm *VersionManager) Advance() Version {
	return Version{ReplicaID: vm.nodeID, Sequence: vm.seq.Add(1)}
}

// Seen reports whether state at version v has already been absorbed.
func (vm *VersionManager) Seen(v Version) bool {
	return v.Sequence > 0 && vm.GetVersion(v.ReplicaID).Sequence >= v.Sequence
}

func (vm *VersionManager) Update(versions ...Version) {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()

	for _, version := range versions {
		vm.handleUpdate(version)
	}
}

// handleUpdate запоминает версию чужой реплики, mutex должен быть захвачен ранее
func (vm *VersionManager) handleUpdate(version Version) {
	if version.ReplicaID == vm.nodeID {
		return
	}
	if vm.version[version.ReplicaID].Sequence < version.Sequence {
		vm.version[version.ReplicaID] = version
	}
}
