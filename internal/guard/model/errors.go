package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData: fewer than two voters, nothing to normalize or compare.
	ErrInsufficientData = errors.New("insufficient data: need at least 2 voters")

	// ErrStoreConflict: the document changed between read and conditional write.
	// Callers must reload and rebuild; blind retries are not allowed.
	ErrStoreConflict = errors.New("store conflict: document version changed")

	ErrNotFound = errors.New("not found")

	ErrInvalidTransition = errors.New("invalid review transition")
	ErrClearWhileActive  = errors.New("cannot clear review while round is active")
	ErrReportUnavailable = errors.New("report unavailable for cleared round")
)

// UpstreamFetchError wraps an explorer failure for one address.
type UpstreamFetchError struct {
	Address string
	Action  string
	Err     error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("upstream fetch %s address=%s: %v", e.Action, e.Address, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// RegistryCorruptError means the registry snapshot could not be parsed.
type RegistryCorruptError struct {
	Key string
	Err error
}

func (e *RegistryCorruptError) Error() string {
	return fmt.Sprintf("registry %s corrupt: %v", e.Key, e.Err)
}

func (e *RegistryCorruptError) Unwrap() error { return e.Err }

func IsRegistryCorrupt(err error) bool {
	var rc *RegistryCorruptError
	return errors.As(err, &rc)
}
