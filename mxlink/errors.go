package mxlink

import (
	"errors"
	"fmt"
	"time"
)

// Terminal startup errors. Each is wrapped with its cause; check with
// errors.Is.
var (
	ErrConfig             = errors.New("invalid configuration")
	ErrAuth               = errors.New("authentication failed")
	ErrClientBuild        = errors.New("building protocol client failed")
	ErrSessionPersistence = errors.New("session persistence failed")
	ErrRestore            = errors.New("restoring session failed")
	ErrRecovery           = errors.New("encryption recovery failed")
	ErrPurge              = errors.New("purging residual local store failed")

	// ErrRecoveryRefused also matches ErrRecovery.
	ErrRecoveryRefused = fmt.Errorf("%w: registered recovery material does not match the passphrase and reset is not allowed", ErrRecovery)

	// ErrLivenessPermanent means the server rejected the stored session.
	ErrLivenessPermanent = errors.New("session check failed permanently; " +
		"delete the session file and the local store directory, then start fresh")
)

// Runtime errors.
var (
	ErrSyncPermanent   = errors.New("sync failed permanently; the session must be re-established")
	ErrBackoffTooLarge = errors.New("join backoff exceeded its ceiling")
)

// BackoffTooLargeError reports the delay that crossed the join ceiling.
type BackoffTooLargeError struct {
	Delay time.Duration
}

func (e *BackoffTooLargeError) Error() string {
	return fmt.Sprintf("join backoff too large: %s", e.Delay)
}

func (e *BackoffTooLargeError) Unwrap() error {
	return ErrBackoffTooLarge
}
