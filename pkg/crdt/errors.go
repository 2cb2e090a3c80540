package crdt

import (
	"errors"
	"fmt"
)

var ErrInvalidDeltaType = fmt.Errorf("invalid delta type")
var ErrCRDTTypeMismatch = fmt.Errorf("CRDT type mismatch")
var ErrConversion = errors.New("value conversion failed")
var ErrNilValue = errors.New("nil value")
var ErrInvalidTimestamp = errors.New("timestamp must be finite")

// ConversionError — адаптер значения не смог выдать байтовое представление.
// Операция, вызвавшая ошибку, не меняет состояние реплики.
type ConversionError struct {
	Value any
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %T: %v", e.Value, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	return []error{ErrConversion, e.Err}
}
