package registry

import "errors"

var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrDuplicateConnection = errors.New("connection id already attached")
	ErrConnectionNotFound  = errors.New("connection not found")
)
