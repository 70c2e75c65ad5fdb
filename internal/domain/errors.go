package domain

import "errors"

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrExecutor         = errors.New("executor failure")
	ErrPoolExhausted    = errors.New("identity pool exhausted")
	ErrConfiguration    = errors.New("configuration error")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrSecretNotFound   = errors.New("secret not found")
)
