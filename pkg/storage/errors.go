package storage

import "errors"

var ErrMalformedDelta = errors.New("malformed delta")
var ErrUnknownKey = errors.New("unknown key")
