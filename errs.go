package crud

import "errors"

var (
	ErrNotFound         = errors.New("item not found")
	ErrKeyAlreadyExists = errors.New("key already exists")
)
