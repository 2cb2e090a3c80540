package crdt

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

const LWWSetName = "LWWSet"

type Option func(*LWWSet)

// WithDeduplication управляет отбрасыванием повторных событий
// (тот же payload, timestamp и вид) при слиянии. Включено по умолчанию.
func WithDeduplication(enabled bool) Option {
	return func(s *LWWSet) {
		s.dedup = enabled
	}
}

// LWWSet — Last-Writer-Wins множество. Хранит журнал добавлений, журнал
// удалений и производное членство, которое пересчитывается при каждом слиянии.
type LWWSet struct {
	mu    sync.RWMutex
	id    uuid.UUID
	dedup bool

	addLog    []TaggedValue
	removeLog []TaggedValue

	// уже виденные события, нужны только при dedup
	addSeen    mapset.Set[eventKey]
	removeSeen mapset.Set[eventKey]

	membership []TaggedValue
	members    mapset.Set[string]
}

func NewLWWSet(id uuid.UUID, opts ...Option) *LWWSet {
	s := &LWWSet{
		id:         id,
		dedup:      true,
		addSeen:    mapset.NewThreadUnsafeSet[eventKey](),
		removeSeen: mapset.NewThreadUnsafeSet[eventKey](),
		members:    mapset.NewThreadUnsafeSet[string](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LWWSet) ID() uuid.UUID {
	return s.id
}

// Add appends an add event. Membership is only refreshed by Merge.
func (s *LWWSet) Add(v Value, ts float64) error {
	if err := checkTimestamp(ts); err != nil {
		return err
	}
	payload, err := payloadOf(v)
	if err != nil {
		return err
	}
	e := TaggedValue{payload: payload, timestamp: ts}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLog = append(s.addLog, e)
	s.addSeen.Add(e.key())
	return nil
}

// Remove appends a remove event (tombstone).
func (s *LWWSet) Remove(v Value, ts float64) error {
	if err := checkTimestamp(ts); err != nil {
		return err
	}
	payload, err := payloadOf(v)
	if err != nil {
		return err
	}
	e := TaggedValue{payload: payload, timestamp: ts}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLog = append(s.removeLog, e)
	s.removeSeen.Add(e.key())
	return nil
}

// Lookup reports whether any surviving add has the same payload as v.
func (s *LWWSet) Lookup(v Value) (bool, error) {
	payload, err := payloadOf(v)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members.Contains(string(payload)), nil
}

// Merge поглощает журналы другой реплики и пересчитывает членство.
// Другая реплика только читается; слияние с самим собой допустимо.
func (s *LWWSet) Merge(other CRDT) error {
	o, ok := other.(*LWWSet)
	if !ok || o == nil {
		return fmt.Errorf("%w: cannot merge %T with %T", ErrCRDTTypeMismatch, s, other)
	}

	// снимок берём до захвата своей блокировки, чтобы не держать две сразу
	adds, removes := o.logs()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingest(adds, removes)
	return nil
}

// ApplyDelta ingests a shipped delta exactly like a merge.
func (s *LWWSet) ApplyDelta(delta Delta) error {
	d, ok := delta.(*LWWSetDelta)
	if !ok {
		return fmt.Errorf("%w: cannot apply delta type %T", ErrInvalidDeltaType, delta)
	}
	if err := d.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingest(d.Adds, d.Removes)
	return nil
}

// Delta возвращает полное состояние журналов в виде дельты для пересылки.
func (s *LWWSet) Delta() *LWWSetDelta {
	adds, removes := s.logs()
	return &LWWSetDelta{Adds: adds, Removes: removes}
}

// checkTimestamp не пускает NaN и ±Inf в журналы: их нельзя закодировать в JSON.
func checkTimestamp(ts float64) error {
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTimestamp, ts)
	}
	return nil
}

func (s *LWWSet) logs() ([]TaggedValue, []TaggedValue) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TaggedValue(nil), s.addLog...), append([]TaggedValue(nil), s.removeLog...)
}

// ingest, mutex должен быть захвачен ранее
func (s *LWWSet) ingest(adds, removes []TaggedValue) {
	for _, e := range adds {
		k := e.key()
		if s.dedup && s.addSeen.Contains(k) {
			continue
		}
		s.addLog = append(s.addLog, e)
		s.addSeen.Add(k)
	}
	for _, e := range removes {
		k := e.key()
		if s.dedup && s.removeSeen.Contains(k) {
			continue
		}
		s.removeLog = append(s.removeLog, e)
		s.removeSeen.Add(k)
	}
	s.materialize()
}

// materialize строит членство заново из двух журналов. Добавление выживает,
// если ни одно удаление того же payload не строго позже него; при равенстве
// меток побеждает добавление.
func (s *LWWSet) materialize() {
	latestRemove := make(map[string]float64, len(s.removeLog))
	for _, r := range s.removeLog {
		p := string(r.payload)
		if ts, ok := latestRemove[p]; !ok || r.timestamp > ts {
			latestRemove[p] = r.timestamp
		}
	}

	membership := make([]TaggedValue, 0, len(s.addLog))
	members := mapset.NewThreadUnsafeSet[string]()
	for _, a := range s.addLog {
		p := string(a.payload)
		if ts, ok := latestRemove[p]; ok && ts > a.timestamp {
			continue
		}
		membership = append(membership, a)
		members.Add(p)
	}

	s.membership = membership
	s.members = members
}

// Membership возвращает копию материализованного членства,
// включая несколько выживших добавлений одного payload.
func (s *LWWSet) Membership() []TaggedValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TaggedValue(nil), s.membership...)
}

// Members returns the distinct surviving payloads.
func (s *LWWSet) Members() mapset.Set[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members.Clone()
}

// Len возвращает размеры журналов добавлений и удалений.
func (s *LWWSet) Len() (adds, removes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.addLog), len(s.removeLog)
}

func (s *LWWSet) Clone() *LWWSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &LWWSet{
		id:         s.id,
		dedup:      s.dedup,
		addLog:     append([]TaggedValue(nil), s.addLog...),
		removeLog:  append([]TaggedValue(nil), s.removeLog...),
		addSeen:    s.addSeen.Clone(),
		removeSeen: s.removeSeen.Clone(),
		membership: append([]TaggedValue(nil), s.membership...),
		members:    s.members.Clone(),
	}
}

type lwwSetJSON struct {
	ID        uuid.UUID     `json:"id"`
	AddLog    []TaggedValue `json:"add_log"`
	RemoveLog []TaggedValue `json:"remove_log"`
}

// MarshalJSON сериализует журналы; членство производное и не сохраняется.
func (s *LWWSet) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return json.Marshal(lwwSetJSON{
		ID:        s.id,
		AddLog:    s.addLog,
		RemoveLog: s.removeLog,
	})
}

// UnmarshalJSON заменяет состояние и материализует членство.
func (s *LWWSet) UnmarshalJSON(data []byte) error {
	var tmp lwwSetJSON
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = tmp.ID
	s.addLog = nil
	s.removeLog = nil
	s.addSeen = mapset.NewThreadUnsafeSet[eventKey]()
	s.removeSeen = mapset.NewThreadUnsafeSet[eventKey]()
	s.ingest(tmp.AddLog, tmp.RemoveLog)
	return nil
}

func (s *LWWSet) Type() string {
	return LWWSetName
}
