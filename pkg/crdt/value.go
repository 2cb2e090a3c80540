package crdt

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"math"
	"reflect"
	"strconv"

	"golang.org/x/exp/constraints"
)

var errNotFinite = errors.New("number is not finite")
var errNilImage = errors.New("nil image")

// Value — любое значение, которое умеет детерминированно превращаться в байты.
// Ядро сравнивает элементы только по этим байтам.
type Value interface {
	Bytes() ([]byte, error)
}

// String хранится как UTF-8.
type String string

func (s String) Bytes() ([]byte, error) {
	return []byte(s), nil
}

// Bytes — уже готовые данные, передаются как есть.
type Bytes []byte

func (b Bytes) Bytes() ([]byte, error) {
	return append([]byte(nil), b...), nil
}

// Number encodes integers and floats in their shortest decimal form.
type Number[N constraints.Integer | constraints.Float] struct {
	N N
}

func NewNumber[N constraints.Integer | constraints.Float](n N) Number[N] {
	return Number[N]{N: n}
}

// Bytes смотрит на Kind, а не на тип, чтобы именованные типы
// (type celsius float64) кодировались так же, как базовые.
func (n Number[N]) Bytes() ([]byte, error) {
	rv := reflect.ValueOf(n.N)
	switch rv.Kind() {
	case reflect.Float32:
		return formatFloat(rv.Float(), 32)
	case reflect.Float64:
		return formatFloat(rv.Float(), 64)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.AppendInt(nil, rv.Int(), 10), nil
	default:
		return strconv.AppendUint(nil, rv.Uint(), 10), nil
	}
}

func formatFloat(f float64, bitSize int) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errNotFinite
	}
	return strconv.AppendFloat(nil, f, 'g', -1, bitSize), nil
}

// JSON — структурированная запись. encoding/json сортирует ключи map,
// поэтому одинаковые записи дают одинаковые байты.
type JSON struct {
	V any
}

func (j JSON) Bytes() ([]byte, error) {
	return json.Marshal(j.V)
}

// PNG кодирует изображение без потерь.
type PNG struct {
	Image image.Image
}

func (p PNG) Bytes() ([]byte, error) {
	if p.Image == nil {
		return nil, errNilImage
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func payloadOf(v Value) ([]byte, error) {
	if v == nil {
		return nil, &ConversionError{Value: v, Err: ErrNilValue}
	}
	data, err := v.Bytes()
	if err != nil {
		return nil, &ConversionError{Value: v, Err: err}
	}
	return data, nil
}

// Payload converts v the same way Add, Remove and Lookup do.
func Payload(v Value) ([]byte, error) {
	return payloadOf(v)
}
