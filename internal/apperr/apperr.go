package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Kind is the closed set of error categories surfaced to callers.
// Low-level store/provider errors are translated onto it exactly once.
type Kind int

const (
	Internal Kind = iota
	Unauthenticated
	InvalidArgument
	ResourceExhausted
	NotFound
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case InvalidArgument:
		return "invalid-argument"
	case ResourceExhausted:
		return "resource-exhausted"
	case NotFound:
		return "not-found"
	case Unavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Msg  string

	// RetryAfterMs is set only for ResourceExhausted.
	RetryAfterMs int64

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func RateLimited(msg string, retryAfterMs int64) *Error {
	return &Error{Kind: ResourceExhausted, Msg: msg, RetryAfterMs: retryAfterMs}
}

// KindOf extracts the Kind from err; unknown errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// RetryAfter returns the retry hint carried by a ResourceExhausted error, 0 otherwise.
func RetryAfter(err error) int64 {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfterMs
	}
	return 0
}

// FromStore is the single translation boundary for persistence-layer errors.
func FromStore(msg string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, redis.Nil):
		return Wrap(NotFound, msg, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Wrap(Unavailable, msg, err)
	default:
		return Wrap(Internal, msg, err)
	}
}
