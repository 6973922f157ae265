package errors

import "errors"

// Local store errors.
var (
	ErrWrongStorePassphrase = errors.New("local store passphrase does not match")
	ErrStoreCorrupt         = errors.New("local store is corrupt")
)

// Key recovery errors.
var (
	ErrRecoveryMissing  = errors.New("no recovery key registered")
	ErrRecoveryMismatch = errors.New("recovery key does not match passphrase")
)

// Server/transport errors.
var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNotFound     = errors.New("not found")
)
