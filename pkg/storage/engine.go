package storage

import (
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"lww-set/pkg/crdt"
)

// defaultScaleThreshold — при каком количестве ключей на шард начинаем увеличивать
const defaultScaleThreshold = 100_000

// Entry — именованное LWW-множество и метка его последнего изменения.
type Entry struct {
	Set         *crdt.LWWSet
	lastUpdated atomic.Uint64
}

func (e *Entry) touch(ts float64) {
	for {
		old := e.lastUpdated.Load()
		if ts <= math.Float64frombits(old) {
			return
		}
		if e.lastUpdated.CompareAndSwap(old, math.Float64bits(ts)) {
			return
		}
	}
}

// LastUpdated returns the latest timestamp written to or merged into the set.
func (e *Entry) LastUpdated() float64 {
	return math.Float64frombits(e.lastUpdated.Load())
}

type Shard struct {
	mu    sync.RWMutex
	data  map[string]*Entry
	moved bool // шард перенесён в новую таблицу, нужно перечитать таблицу
}

type shardTable struct {
	shards []*Shard
}

func newShardTable(n int) *shardTable {
	t := &shardTable{shards: make([]*Shard, n)}
	for i := range t.shards {
		t.shards[i] = &Shard{data: make(map[string]*Entry, 128)}
	}
	return t
}

func (t *shardTable) shardFor(key string) *Shard {
	return t.shards[hashKey(key)&uint32(len(t.shards)-1)]
}

type EngineConfig struct {
	ReplicaID      uuid.UUID
	Shards         int
	ScaleThreshold int64
	SetOptions     []crdt.Option
}

// Engine — шардированное хранилище LWW-множеств по ключу.
type Engine struct {
	replicaID      uuid.UUID
	setOptions     []crdt.Option
	table          atomic.Pointer[shardTable]
	growthLock     sync.Mutex
	scaleThreshold int64
	growing        atomic.Bool

	// статистика
	countKeys atomic.Int64
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Shards <= 0 {
		cfg.Shards = 64
	}
	if cfg.ScaleThreshold <= 0 {
		cfg.ScaleThreshold = defaultScaleThreshold
	}
	e := &Engine{
		replicaID:      cfg.ReplicaID,
		setOptions:     cfg.SetOptions,
		scaleThreshold: cfg.ScaleThreshold,
	}
	e.table.Store(newShardTable(nextPowerOfTwo(cfg.Shards)))
	return e
}

func (e *Engine) Get(key string) (*Entry, bool) {
	for {
		shard := e.table.Load().shardFor(key)
		shard.mu.RLock()
		if shard.moved {
			shard.mu.RUnlock()
			continue
		}
		entry, ok := shard.data[key]
		shard.mu.RUnlock()
		return entry, ok
	}
}

// GetOrCreate returns the entry for key, creating an empty set when missing.
func (e *Engine) GetOrCreate(key string) (*Entry, bool) {
	if entry, ok := e.Get(key); ok {
		return entry, false
	}

	for {
		shard := e.table.Load().shardFor(key)
		shard.mu.Lock()
		if shard.moved {
			shard.mu.Unlock()
			continue
		}

		if entry, ok := shard.data[key]; ok {
			shard.mu.Unlock()
			return entry, false
		}

		entry := &Entry{Set: crdt.NewLWWSet(e.replicaID, e.setOptions...)}
		shard.data[key] = entry
		e.countKeys.Add(1)
		shard.mu.Unlock()

		e.maybeScale()
		return entry, true
	}
}

// Keys возвращает отсортированный список ключей.
func (e *Engine) Keys() []string {
	keys := make([]string, 0, e.countKeys.Load())
	for {
		table := e.table.Load()
		keys = keys[:0]
		moved := false
		for _, shard := range table.shards {
			shard.mu.RLock()
			moved = shard.moved
			if !moved {
				keys = slices.AppendSeq(keys, maps.Keys(shard.data))
			}
			shard.mu.RUnlock()
			if moved {
				break
			}
		}
		if !moved {
			slices.Sort(keys)
			return keys
		}
	}
}

func (e *Engine) Len() int {
	return int(e.countKeys.Load())
}

func (e *Engine) NumShards() int {
	return len(e.table.Load().shards)
}

func (e *Engine) maybeScale() {
	total := e.countKeys.Load()
	nShards := int64(e.NumShards())

	if total/nShards > e.scaleThreshold && e.growing.CompareAndSwap(false, true) {
		go e.growShards()
	}
}

func (e *Engine) growShards() {
	defer e.growing.Store(false)

	e.growthLock.Lock()
	defer e.growthLock.Unlock()

	old := e.table.Load()
	current := int64(len(old.shards))
	if total := e.countKeys.Load(); total/current <= e.scaleThreshold {
		return // кто-то уже увеличил
	}

	for _, shard := range old.shards {
		shard.mu.Lock()
	}

	// перемещаем ключи в новые шарды (ребаланс по хэшу)
	next := newShardTable(len(old.shards) * 2)
	for _, shard := range old.shards {
		for k, v := range shard.data {
			next.shardFor(k).data[k] = v
		}
		shard.moved = true
	}
	e.table.Store(next)

	for _, shard := range old.shards {
		shard.mu.Unlock()
	}

	slog.Info("[store] scaled shards", "shards", len(next.shards))
}
