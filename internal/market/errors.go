package market

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure so callers can react to the
// category without parsing messages.
type Kind string

const (
	KindStoreUnavailable         Kind = "store_unavailable"
	KindContractResolutionFailed Kind = "contract_resolution_failed"
	KindUpstreamUnavailable      Kind = "upstream_unavailable"
	KindUpstreamTimeout          Kind = "upstream_timeout"
	KindUpstreamRateLimited      Kind = "upstream_rate_limited"
	KindUpstreamSubscribeFailed  Kind = "upstream_subscribe_failed"
	KindInvalidRange             Kind = "invalid_range"
	KindInternal                 Kind = "internal"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Ef(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the outermost *Error in err's chain,
// or KindInternal for anything untyped.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
