package domain

import (
	"errors"
	"fmt"
)

// ErrKind classifies a KeeperError so callers can branch on failure category
// without parsing message strings.
type ErrKind string

const (
	ErrKindConfig      ErrKind = "config"
	ErrKindFeed        ErrKind = "feed"
	ErrKindExchange    ErrKind = "exchange"
	ErrKindRateLimited ErrKind = "rate_limited"
	ErrKindLock        ErrKind = "lock"
	ErrKindSigning     ErrKind = "signing"
	ErrKindGas         ErrKind = "gas"
	ErrKindSafety      ErrKind = "unsafe"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrInvalidBand    = errors.New("invalid band configuration")
	ErrSigningFailed  = errors.New("signing failed")
	ErrFeedExpired    = errors.New("price feed expired")
	ErrFeedUnavailable = errors.New("no price feed available")
	ErrContextDone    = errors.New("context cancelled")
	ErrLockHeld       = errors.New("lock already held")
	ErrNotRunning     = errors.New("keeper not running")
	ErrUnsafeBalance  = errors.New("balance below configured safety floor")
)

// KeeperError wraps an underlying error with a Kind for coarse-grained
// handling (metrics tagging, notification routing) and an optional component
// name identifying where it originated (e.g. a band label or feed URI).
type KeeperError struct {
	Kind      ErrKind
	Component string
	Err       error
}

func (e *KeeperError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Component, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KeeperError) Unwrap() error { return e.Err }

// NewError constructs a KeeperError tagged with kind and an optional
// component label.
func NewError(kind ErrKind, component string, err error) *KeeperError {
	return &KeeperError{Kind: kind, Component: component, Err: err}
}
