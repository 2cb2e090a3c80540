package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"lww-set/pkg/crdt"
)

type StoreOption func(*Store)

func WithClock(clock *crdt.Clock) StoreOption {
	return func(s *Store) {
		s.clock = clock
	}
}

func WithMetrics(m *Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store — набор именованных LWW-множеств одной реплики. Метки времени
// для локальных операций берутся из часов реплики.
type Store struct {
	id      uuid.UUID
	engine  *Engine
	vm      *VersionManager
	clock   *crdt.Clock
	metrics *Metrics
	logger  *slog.Logger
}

func NewStore(id uuid.UUID, engine *Engine, opts ...StoreOption) *Store {
	s := &Store{
		id:     id,
		engine: engine,
		vm:     NewVersionManager(id.String()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = crdt.NewClock()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil, id.String())
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Store) ID() string {
	return s.id.String()
}

func (s *Store) Version() Version {
	return s.vm.Current()
}

func (s *Store) Add(key string, v crdt.Value) error {
	return s.apply(key, "add", v, (*crdt.LWWSet).Add)
}

func (s *Store) Remove(key string, v crdt.Value) error {
	return s.apply(key, "remove", v, (*crdt.LWWSet).Remove)
}

func (s *Store) apply(key, op string, v crdt.Value, fn func(*crdt.LWWSet, crdt.Value, float64) error) error {
	// конвертируем один раз и заранее, чтобы не заводить ключ под неконвертируемое значение
	payload, err := crdt.Payload(v)
	if err != nil {
		s.metrics.conversionErrors.Inc()
		return fmt.Errorf("%s %q: %w", op, key, err)
	}

	entry, created := s.engine.GetOrCreate(key)
	if created {
		s.metrics.keys.Set(float64(s.engine.Len()))
	}

	ts := s.clock.Now()
	if err := fn(entry.Set, crdt.Bytes(payload), ts); err != nil {
		return fmt.Errorf("%s %q: %w", op, key, err)
	}
	entry.touch(ts)

	version := s.vm.Advance()
	s.metrics.operations.WithLabelValues(op).Inc()
	s.logger.Debug("local operation", "op", op, "key", key, "ts", ts, "seq", version.Sequence)
	return nil
}

// Lookup reports whether v is a member of the set stored at key.
func (s *Store) Lookup(key string, v crdt.Value) (bool, error) {
	entry, ok := s.engine.Get(key)
	if !ok {
		if _, err := crdt.Payload(v); err != nil {
			return false, fmt.Errorf("lookup %q: %w", key, err)
		}
		return false, nil
	}

	found, err := entry.Set.Lookup(v)
	if err != nil {
		return false, fmt.Errorf("lookup %q: %w", key, err)
	}
	return found, nil
}

// Materialize пересчитывает членство множества слиянием с самим собой,
// чтобы локальные операции стали видны в Lookup.
func (s *Store) Materialize(key string) error {
	entry, ok := s.engine.Get(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return entry.Set.Merge(entry.Set)
}

// Members returns the sorted distinct payloads of the set at key.
func (s *Store) Members(key string) []string {
	entry, ok := s.engine.Get(key)
	if !ok {
		return nil
	}
	members := entry.Set.Members().ToSlice()
	slices.Sort(members)
	return members
}

func (s *Store) Keys() []string {
	return s.engine.Keys()
}

func (s *Store) LastUpdated(key string) (float64, bool) {
	entry, ok := s.engine.Get(key)
	if !ok {
		return 0, false
	}
	return entry.LastUpdated(), true
}

// Export кодирует журналы всех множеств в JSON-дельты по ключам.
// Версия читается до журналов: состояние может быть новее версии, но не старше.
func (s *Store) Export() (Version, map[string][]byte, error) {
	version := s.vm.Current()
	keys := s.engine.Keys()
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		entry, ok := s.engine.Get(key)
		if !ok {
			continue
		}
		data, err := json.Marshal(entry.Set.Delta())
		if err != nil {
			return Version{}, nil, fmt.Errorf("export %q: %w", key, err)
		}
		out[key] = data
	}
	return version, out, nil
}

// Import absorbs deltas exported by a peer at version from. State already
// absorbed at that version is skipped. Returns the number of new events.
func (s *Store) Import(from Version, deltas map[string][]byte) (int, error) {
	if s.vm.Seen(from) {
		s.metrics.imports.WithLabelValues("skipped").Inc()
		return 0, nil
	}

	decoded := make(map[string]*crdt.LWWSetDelta, len(deltas))
	for key, data := range deltas {
		var d crdt.LWWSetDelta
		if err := json.Unmarshal(data, &d); err != nil {
			s.metrics.imports.WithLabelValues("failed").Inc()
			return 0, fmt.Errorf("%w for %q from %s: %v", ErrMalformedDelta, key, from.ReplicaID, err)
		}
		decoded[key] = &d
	}

	ingested := 0
	for key, d := range decoded {
		n, err := s.importSet(key, d)
		if err != nil {
			s.metrics.imports.WithLabelValues("failed").Inc()
			return ingested, err
		}
		ingested += n
	}

	if ingested > 0 {
		s.vm.Advance()
	}
	s.vm.Update(from)

	s.metrics.imports.WithLabelValues("applied").Inc()
	s.metrics.ingestedEvents.Add(float64(ingested))
	s.logger.Debug("imported peer state", "peer", from.ReplicaID, "peer_seq", from.Sequence, "keys", len(decoded), "events", ingested)
	return ingested, nil
}

func (s *Store) importSet(key string, d *crdt.LWWSetDelta) (int, error) {
	entry, created := s.engine.GetOrCreate(key)
	if created {
		s.metrics.keys.Set(float64(s.engine.Len()))
	}

	adds, removes := entry.Set.Len()
	if err := entry.Set.ApplyDelta(d); err != nil {
		return 0, fmt.Errorf("import %q: %w", key, err)
	}
	gotAdds, gotRemoves := entry.Set.Len()

	if ts, ok := d.MaxTimestamp(); ok {
		s.clock.Observe(ts)
		entry.touch(ts)
	}
	return gotAdds - adds + gotRemoves - removes, nil
}
