package kvstore

import (
	"errors"
	"fmt"
)

// Kind classifies store failures.
type Kind int

const (
	KindNotInitialized Kind = iota + 1
	KindBlocked
	KindSchemaMismatch
	KindTransaction
	KindVersion
	KindInvalidated
)

func (k Kind) String() string {
	switch k {
	case KindNotInitialized:
		return "not initialized"
	case KindBlocked:
		return "blocked"
	case KindSchemaMismatch:
		return "schema mismatch"
	case KindTransaction:
		return "transaction failed"
	case KindVersion:
		return "version error"
	case KindInvalidated:
		return "invalidated by version change"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Sentinels for errors.Is. Any *Error matches the sentinel of the same Kind.
var (
	ErrNotInitialized = &Error{Kind: KindNotInitialized}
	ErrBlocked        = &Error{Kind: KindBlocked}
	ErrSchemaMismatch = &Error{Kind: KindSchemaMismatch}
	ErrTransaction    = &Error{Kind: KindTransaction}
	ErrVersion        = &Error{Kind: KindVersion}
	ErrInvalidated    = &Error{Kind: KindInvalidated}
)

// ErrInvalidOptions is returned by New when the options are unusable.
var ErrInvalidOptions = errors.New("kvstore: invalid options")

// Error is returned by every Store operation that fails.
type Error struct {
	Kind     Kind
	Op       string
	Database string
	Store    string
	Err      error
}

func (e *Error) Error() string {
	msg := "kvstore"
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Database != "" {
		msg += fmt.Sprintf(" %s/%s", e.Database, e.Store)
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
