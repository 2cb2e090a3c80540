package crdt

import (
	"bytes"
	"encoding/json"
	"math"
)

// TaggedValue — одно событие add или remove: payload на момент timestamp.
// Идентичность элемента определяется только payload.
type TaggedValue struct {
	payload   []byte
	timestamp float64
}

func NewTaggedValue(payload []byte, timestamp float64) TaggedValue {
	return TaggedValue{
		payload:   append([]byte(nil), payload...),
		timestamp: timestamp,
	}
}

func (t TaggedValue) Payload() []byte {
	return append([]byte(nil), t.payload...)
}

func (t TaggedValue) Timestamp() float64 {
	return t.timestamp
}

// Equal compares payloads byte-for-byte; timestamps are ignored.
func (t TaggedValue) Equal(other TaggedValue) bool {
	return bytes.Equal(t.payload, other.payload)
}

func EqualTagged(a, b TaggedValue) bool {
	return a.Equal(b)
}

// key идентифицирует событие целиком (payload + timestamp) для дедупликации.
func (t TaggedValue) key() eventKey {
	return eventKey{payload: string(t.payload), ts: math.Float64bits(t.timestamp)}
}

type eventKey struct {
	payload string
	ts      uint64
}

type taggedValueJSON struct {
	Payload   []byte  `json:"payload"`
	Timestamp float64 `json:"timestamp"`
}

func (t TaggedValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValueJSON{Payload: t.payload, Timestamp: t.timestamp})
}

func (t *TaggedValue) UnmarshalJSON(data []byte) error {
	var tmp taggedValueJSON
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	t.payload = tmp.Payload
	t.timestamp = tmp.Timestamp
	return nil
}
