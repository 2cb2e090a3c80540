package crdt

import (
	"encoding/json"
	"fmt"
	"math"
)

// LWWSetDelta — события add/remove, пересылаемые между репликами.
type LWWSetDelta struct {
	Adds    []TaggedValue `json:"adds"`
	Removes []TaggedValue `json:"removes"`
}

// MaxTimestamp returns the latest finite timestamp carried by the delta.
func (d *LWWSetDelta) MaxTimestamp() (float64, bool) {
	found := false
	latest := math.Inf(-1)
	for _, events := range [][]TaggedValue{d.Adds, d.Removes} {
		for _, e := range events {
			if math.IsNaN(e.timestamp) || math.IsInf(e.timestamp, 0) {
				continue
			}
			if e.timestamp > latest {
				latest = e.timestamp
			}
			found = true
		}
	}
	return latest, found
}

// validate отклоняет дельту целиком, если хоть одна метка не конечна.
func (d *LWWSetDelta) validate() error {
	for _, events := range [][]TaggedValue{d.Adds, d.Removes} {
		for _, e := range events {
			if err := checkTimestamp(e.timestamp); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *LWWSetDelta) MarshalJSON() ([]byte, error) {
	type Alias LWWSetDelta
	return json.Marshal(struct {
		Type string `json:"type"`
		*Alias
	}{
		Type:  LWWSetName,
		Alias: (*Alias)(d),
	})
}

func (d *LWWSetDelta) UnmarshalJSON(data []byte) error {
	type Alias LWWSetDelta
	aux := struct {
		Type string `json:"type"`
		*Alias
	}{
		Alias: (*Alias)(d),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Type != "" && aux.Type != LWWSetName {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidDeltaType, LWWSetName, aux.Type)
	}
	return nil
}

func (d *LWWSetDelta) Type() string {
	return LWWSetName
}
