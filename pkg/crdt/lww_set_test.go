package crdt

import (
	"encoding/json"
	"errors"
	"math"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type eventKind int

const (
	addEvent eventKind = iota
	removeEvent
)

type event struct {
	kind  eventKind
	value string
	ts    float64
}

func replicaWith(t *testing.T, events ...event) *LWWSet {
	t.Helper()
	s := NewLWWSet(uuid.New())
	for _, e := range events {
		var err error
		switch e.kind {
		case addEvent:
			err = s.Add(String(e.value), e.ts)
		case removeEvent:
			err = s.Remove(String(e.value), e.ts)
		}
		if err != nil {
			t.Fatalf("apply %+v: %v", e, err)
		}
	}
	return s
}

func merge(t *testing.T, dst, src *LWWSet) {
	t.Helper()
	if err := dst.Merge(src); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
}

func lookup(t *testing.T, s *LWWSet, v Value) bool {
	t.Helper()
	ok, err := s.Lookup(v)
	if err != nil {
		t.Fatalf("Lookup(%v) error = %v", v, err)
	}
	return ok
}

func sortedMembers(s *LWWSet) []string {
	m := s.Members().ToSlice()
	sort.Strings(m)
	return m
}

func sameMembers(a, b *LWWSet) bool {
	return a.Members().Equal(b.Members())
}

func TestLWWSet_AddThenLookup(t *testing.T) {
	s := replicaWith(t, event{addEvent, "x", 1})

	if lookup(t, s, String("x")) {
		t.Errorf("Lookup before merge = true, want false (membership not materialized yet)")
	}

	merge(t, s, s)
	if !lookup(t, s, String("x")) {
		t.Errorf("Lookup after self-merge = false, want true")
	}
}

func TestLWWSet_Resolution(t *testing.T) {
	tests := []struct {
		name   string
		events []event
		want   map[string]bool
	}{
		{
			name:   "remove after add wins",
			events: []event{{addEvent, "x", 1}, {removeEvent, "x", 2}},
			want:   map[string]bool{"x": false},
		},
		{
			name:   "add after remove wins",
			events: []event{{removeEvent, "x", 1}, {addEvent, "x", 2}},
			want:   map[string]bool{"x": true},
		},
		{
			name:   "arrival order does not matter",
			events: []event{{removeEvent, "x", 2}, {addEvent, "x", 1}},
			want:   map[string]bool{"x": false},
		},
		{
			name:   "equal timestamps favour add",
			events: []event{{addEvent, "x", 5}, {removeEvent, "x", 5}},
			want:   map[string]bool{"x": true},
		},
		{
			name: "remove of never added values is a no-op",
			events: []event{
				{removeEvent, "foo", 1},
				{removeEvent, "bar", 2},
				{addEvent, "hello", 3},
				{removeEvent, "there", 4},
			},
			want: map[string]bool{"hello": true, "foo": false, "bar": false, "there": false},
		},
		{
			name:   "later add outlives remove",
			events: []event{{addEvent, "x", 1}, {addEvent, "x", 10}, {removeEvent, "x", 5}},
			want:   map[string]bool{"x": true},
		},
		{
			name:   "remove dominates every add",
			events: []event{{addEvent, "x", 1}, {addEvent, "x", 2}, {removeEvent, "x", 3}},
			want:   map[string]bool{"x": false},
		},
		{
			name: "values resolve independently",
			events: []event{
				{addEvent, "a", 1},
				{addEvent, "b", 1},
				{removeEvent, "a", 2},
			},
			want: map[string]bool{"a": false, "b": true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := replicaWith(t, tc.events...)
			merge(t, s, s)
			for v, want := range tc.want {
				if got := lookup(t, s, String(v)); got != want {
					t.Errorf("Lookup(%q) = %v, want %v", v, got, want)
				}
			}
		})
	}
}

func TestLWWSet_RemoveNonexistingKeepsMembership(t *testing.T) {
	a := replicaWith(t, event{addEvent, "Hello", 1})
	b := replicaWith(t,
		event{removeEvent, "foo", 1},
		event{removeEvent, "bar", 2},
		event{removeEvent, "there", 3},
	)

	merge(t, b, a)

	if !lookup(t, b, String("Hello")) {
		t.Errorf("Lookup(Hello) = false, want true")
	}
	if got := len(b.Membership()); got != 1 {
		t.Errorf("len(Membership()) = %d, want 1", got)
	}
}

func TestLWWSet_ConcurrentAddRemoveAcrossReplicas(t *testing.T) {
	tests := []struct {
		name string
		a    []event
		b    []event
		want bool
	}{
		{
			name: "later remove dominates",
			a:    []event{{addEvent, "x", 5}},
			b:    []event{{removeEvent, "x", 10}},
			want: false,
		},
		{
			name: "later add dominates",
			a:    []event{{addEvent, "x", 10}},
			b:    []event{{removeEvent, "x", 5}},
			want: true,
		},
		{
			name: "simultaneous add and remove",
			a:    []event{{addEvent, "x", 7}},
			b:    []event{{removeEvent, "x", 7}},
			want: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := replicaWith(t, tc.a...)
			b := replicaWith(t, tc.b...)

			merge(t, b, a)
			merge(t, a, b)

			if got := lookup(t, a, String("x")); got != tc.want {
				t.Errorf("replica A Lookup(x) = %v, want %v", got, tc.want)
			}
			if got := lookup(t, b, String("x")); got != tc.want {
				t.Errorf("replica B Lookup(x) = %v, want %v", got, tc.want)
			}
		})
	}
}

func histories(t *testing.T) (a, b, c *LWWSet) {
	t.Helper()
	a = replicaWith(t,
		event{addEvent, "x", 1},
		event{addEvent, "y", 2},
		event{removeEvent, "z", 8},
		event{addEvent, "w", 4},
	)
	b = replicaWith(t,
		event{removeEvent, "x", 3},
		event{addEvent, "z", 5},
		event{addEvent, "y", 2},
		event{removeEvent, "w", 4},
	)
	c = replicaWith(t,
		event{addEvent, "x", 6},
		event{removeEvent, "y", 9},
		event{addEvent, "v", 1},
	)
	return a, b, c
}

func TestLWWSet_MergeCommutative(t *testing.T) {
	a, b, _ := histories(t)

	ab := b.Clone()
	merge(t, ab, a)
	ba := a.Clone()
	merge(t, ba, b)

	if !sameMembers(ab, ba) {
		t.Errorf("merge(A into B) = %v, merge(B into A) = %v", sortedMembers(ab), sortedMembers(ba))
	}

	want := []string{"w", "y"}
	if got := sortedMembers(ab); !slices.Equal(got, want) {
		t.Errorf("Members() = %v, want %v", got, want)
	}
}

func TestLWWSet_MergeAssociative(t *testing.T) {
	a, b, c := histories(t)
	orders := [][]*LWWSet{
		{a, b, c},
		{a, c, b},
		{b, a, c},
		{b, c, a},
		{c, a, b},
		{c, b, a},
	}

	var reference *LWWSet
	for i, order := range orders {
		fresh := NewLWWSet(uuid.New())
		for _, src := range order {
			merge(t, fresh, src)
		}
		if reference == nil {
			reference = fresh
			continue
		}
		if !sameMembers(reference, fresh) {
			t.Errorf("order %d: Members() = %v, want %v", i, sortedMembers(fresh), sortedMembers(reference))
		}
	}

	// (A ∪ B) ∪ C == A ∪ (B ∪ C)
	left := a.Clone()
	merge(t, left, b)
	merge(t, left, c)
	bc := b.Clone()
	merge(t, bc, c)
	right := a.Clone()
	merge(t, right, bc)
	if !sameMembers(left, right) {
		t.Errorf("(A+B)+C = %v, A+(B+C) = %v", sortedMembers(left), sortedMembers(right))
	}

	want := []string{"v", "w", "x"}
	if got := sortedMembers(reference); !slices.Equal(got, want) {
		t.Errorf("Members() = %v, want %v", got, want)
	}
}

func TestLWWSet_MergeIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		dedup bool
	}{
		{name: "with deduplication", dedup: true},
		{name: "without deduplication", dedup: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, b, _ := histories(t)
			a := NewLWWSet(uuid.New(), WithDeduplication(tc.dedup))
			if err := a.Add(String("x"), 1); err != nil {
				t.Fatal(err)
			}

			merge(t, a, b)
			before := a.Members()
			adds, removes := a.Len()

			merge(t, a, b)
			merge(t, a, a)

			if !a.Members().Equal(before) {
				t.Errorf("Members() changed after re-merge: %v -> %v", before, a.Members())
			}

			gotAdds, gotRemoves := a.Len()
			if tc.dedup && (gotAdds != adds || gotRemoves != removes) {
				t.Errorf("Len() = (%d, %d), want (%d, %d)", gotAdds, gotRemoves, adds, removes)
			}
			if !tc.dedup && gotAdds <= adds {
				t.Errorf("Len() adds = %d, want growth past %d without deduplication", gotAdds, adds)
			}
		})
	}
}

func TestLWWSet_MergeDoesNotMutateSource(t *testing.T) {
	a, b, _ := histories(t)
	adds, removes := b.Len()

	merge(t, a, b)

	gotAdds, gotRemoves := b.Len()
	if gotAdds != adds || gotRemoves != removes {
		t.Errorf("source Len() = (%d, %d), want (%d, %d)", gotAdds, gotRemoves, adds, removes)
	}
	if b.Members().Cardinality() != 0 {
		t.Errorf("source membership materialized by foreign merge: %v", sortedMembers(b))
	}
}

func TestLWWSet_ByteLevelEquality(t *testing.T) {
	tests := []struct {
		name   string
		added  Value
		lookup Value
		want   bool
	}{
		{name: "string and raw bytes", added: String("hi"), lookup: Bytes("hi"), want: true},
		{name: "number and its text", added: NewNumber(42), lookup: String("42"), want: true},
		{name: "json record and equal record", added: JSON{V: map[string]int{"b": 2, "a": 1}}, lookup: JSON{V: map[string]int{"a": 1, "b": 2}}, want: true},
		{name: "json string is quoted", added: JSON{V: "hi"}, lookup: String("hi"), want: false},
		{name: "different bytes", added: String("hi"), lookup: String("Hi"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewLWWSet(uuid.New())
			if err := s.Add(tc.added, 1); err != nil {
				t.Fatal(err)
			}
			merge(t, s, s)
			if got := lookup(t, s, tc.lookup); got != tc.want {
				t.Errorf("Lookup() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLWWSet_RemoveMatchesByBytes(t *testing.T) {
	s := NewLWWSet(uuid.New())
	if err := s.Add(String("42"), 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(NewNumber(int64(42)), 2); err != nil {
		t.Fatal(err)
	}
	merge(t, s, s)

	if lookup(t, s, String("42")) {
		t.Errorf("Lookup(42) = true, want false")
	}
}

func TestLWWSet_ConversionError(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		wantErr error
	}{
		{name: "nil value", value: nil, wantErr: ErrNilValue},
		{name: "NaN", value: NewNumber(math.NaN()), wantErr: errNotFinite},
		{name: "infinity", value: NewNumber(float32(math.Inf(1))), wantErr: errNotFinite},
		{name: "nil image", value: PNG{}, wantErr: errNilImage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := replicaWith(t, event{addEvent, "x", 1})

			errs := []error{s.Add(tc.value, 2), s.Remove(tc.value, 3)}
			_, lookupErr := s.Lookup(tc.value)
			errs = append(errs, lookupErr)

			for _, err := range errs {
				var convErr *ConversionError
				if !errors.As(err, &convErr) {
					t.Fatalf("error = %v, want *ConversionError", err)
				}
				if !errors.Is(err, ErrConversion) {
					t.Errorf("errors.Is(err, ErrConversion) = false")
				}
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("errors.Is(err, %v) = false, err = %v", tc.wantErr, err)
				}
			}

			if adds, removes := s.Len(); adds != 1 || removes != 0 {
				t.Errorf("Len() = (%d, %d), want (1, 0)", adds, removes)
			}
		})
	}
}

func TestLWWSet_MultipleSurvivingAdds(t *testing.T) {
	s := replicaWith(t,
		event{addEvent, "x", 1},
		event{addEvent, "x", 2},
		event{removeEvent, "x", 1.5},
	)
	merge(t, s, s)

	membership := s.Membership()
	if len(membership) != 1 || membership[0].Timestamp() != 2 {
		t.Fatalf("Membership() = %+v, want single entry at ts 2", membership)
	}

	s = replicaWith(t, event{addEvent, "x", 1}, event{addEvent, "x", 2})
	merge(t, s, s)
	if got := len(s.Membership()); got != 2 {
		t.Errorf("len(Membership()) = %d, want 2", got)
	}
	if got := s.Members().Cardinality(); got != 1 {
		t.Errorf("Members().Cardinality() = %d, want 1", got)
	}
}

type foreignCRDT struct{}

func (foreignCRDT) Merge(CRDT) error { return nil }
func (foreignCRDT) ApplyDelta(Delta) error { return nil }
func (foreignCRDT) MarshalJSON() ([]byte, error) { return []byte("{}"), nil }
func (foreignCRDT) UnmarshalJSON(data []byte) error { return nil }
func (foreignCRDT) Type() string { return "foreign" }

func TestLWWSet_MergeTypeMismatch(t *testing.T) {
	s := NewLWWSet(uuid.New())
	if err := s.Merge(foreignCRDT{}); !errors.Is(err, ErrCRDTTypeMismatch) {
		t.Errorf("Merge(foreign) error = %v, want ErrCRDTTypeMismatch", err)
	}

	var missing *LWWSet
	if err := s.Merge(missing); !errors.Is(err, ErrCRDTTypeMismatch) {
		t.Errorf("Merge(nil *LWWSet) error = %v, want ErrCRDTTypeMismatch", err)
	}
}

func TestLWWSet_NonFiniteTimestamp(t *testing.T) {
	tests := []struct {
		name string
		ts   float64
	}{
		{name: "NaN", ts: math.NaN()},
		{name: "+Inf", ts: math.Inf(1)},
		{name: "-Inf", ts: math.Inf(-1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := replicaWith(t, event{addEvent, "x", 1})

			if err := s.Add(String("y"), tc.ts); !errors.Is(err, ErrInvalidTimestamp) {
				t.Errorf("Add() error = %v, want ErrInvalidTimestamp", err)
			}
			if err := s.Remove(String("x"), tc.ts); !errors.Is(err, ErrInvalidTimestamp) {
				t.Errorf("Remove() error = %v, want ErrInvalidTimestamp", err)
			}

			delta := &LWWSetDelta{
				Adds:    []TaggedValue{NewTaggedValue([]byte("z"), 2)},
				Removes: []TaggedValue{NewTaggedValue([]byte("x"), tc.ts)},
			}
			if err := s.ApplyDelta(delta); !errors.Is(err, ErrInvalidTimestamp) {
				t.Errorf("ApplyDelta() error = %v, want ErrInvalidTimestamp", err)
			}

			if adds, removes := s.Len(); adds != 1 || removes != 0 {
				t.Errorf("Len() = (%d, %d), want (1, 0)", adds, removes)
			}
			if _, err := json.Marshal(s); err != nil {
				t.Errorf("MarshalJSON() error = %v", err)
			}
			if _, err := json.Marshal(s.Delta()); err != nil {
				t.Errorf("Marshal(delta) error = %v", err)
			}
		})
	}
}

func TestLWWSet_ApplyDelta(t *testing.T) {
	a, b, _ := histories(t)

	viaMerge := a.Clone()
	merge(t, viaMerge, b)

	data, err := json.Marshal(b.Delta())
	if err != nil {
		t.Fatalf("Marshal(delta) error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["type"] != LWWSetName {
		t.Errorf("type field = %v, want %q", raw["type"], LWWSetName)
	}

	var delta LWWSetDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		t.Fatalf("Unmarshal(delta) error = %v", err)
	}

	viaDelta := a.Clone()
	if err := viaDelta.ApplyDelta(&delta); err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}

	if !sameMembers(viaMerge, viaDelta) {
		t.Errorf("ApplyDelta Members() = %v, Merge Members() = %v", sortedMembers(viaDelta), sortedMembers(viaMerge))
	}
}

func TestLWWSetDelta_InvalidType(t *testing.T) {
	var d LWWSetDelta
	err := json.Unmarshal([]byte(`{"type":"PNCounter","adds":[]}`), &d)
	if !errors.Is(err, ErrInvalidDeltaType) {
		t.Errorf("Unmarshal() error = %v, want ErrInvalidDeltaType", err)
	}
}

func TestLWWSetDelta_MaxTimestamp(t *testing.T) {
	d := &LWWSetDelta{
		Adds:    []TaggedValue{NewTaggedValue([]byte("a"), 3), NewTaggedValue([]byte("b"), math.NaN())},
		Removes: []TaggedValue{NewTaggedValue([]byte("a"), 7)},
	}
	if got, ok := d.MaxTimestamp(); !ok || got != 7 {
		t.Errorf("MaxTimestamp() = (%v, %v), want (7, true)", got, ok)
	}
	if _, ok := (&LWWSetDelta{}).MaxTimestamp(); ok {
		t.Errorf("MaxTimestamp() on empty delta reported a value")
	}
}

func TestLWWSet_JSONSnapshot(t *testing.T) {
	a, b, _ := histories(t)
	merge(t, a, b)

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	restored := NewLWWSet(uuid.New())
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}

	if restored.ID() != a.ID() {
		t.Errorf("ID() = %v, want %v", restored.ID(), a.ID())
	}
	if !sameMembers(restored, a) {
		t.Errorf("Members() = %v, want %v", sortedMembers(restored), sortedMembers(a))
	}
}

func TestLWWSet_CloneIsIndependent(t *testing.T) {
	a := replicaWith(t, event{addEvent, "x", 1})
	clone := a.Clone()

	if err := clone.Add(String("y"), 2); err != nil {
		t.Fatal(err)
	}
	if adds, _ := a.Len(); adds != 1 {
		t.Errorf("original Len() adds = %d, want 1", adds)
	}
}

func TestLWWSet_ConcurrentMerges(t *testing.T) {
	a := NewLWWSet(uuid.New())
	b := NewLWWSet(uuid.New())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(4)
		go func(i int) {
			defer wg.Done()
			_ = a.Add(NewNumber(i), float64(i))
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = b.Remove(NewNumber(i), float64(i)+0.5)
		}(i)
		go func() {
			defer wg.Done()
			_ = a.Merge(b)
		}()
		go func() {
			defer wg.Done()
			_ = b.Merge(a)
		}()
	}
	wg.Wait()

	merge(t, a, b)
	merge(t, b, a)

	if !sameMembers(a, b) {
		t.Errorf("replicas diverged: %v vs %v", sortedMembers(a), sortedMembers(b))
	}
	if got := a.Members().Cardinality(); got != 0 {
		t.Errorf("Members().Cardinality() = %d, want 0", got)
	}
}
