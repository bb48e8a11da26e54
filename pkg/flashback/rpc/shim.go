// Package rpc calls backend commands through a compatibility shim. The
// backend's argument naming has drifted between versions, so a call whose
// arguments are rejected by name is retried once under the alternate
// convention before the failure reaches the caller.
package rpc

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_invoker.go -package=mocks github.com/jamesainslie/flashback/pkg/flashback/rpc Invoker

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"google.golang.org/protobuf/types/known/structpb"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
)

// Args are the named arguments of a backend command.
type Args map[string]any

// Keys returns the argument names in sorted order.
func (a Args) Keys() []string {
	return slices.Sorted(maps.Keys(a))
}

// Invoker performs one raw backend command. *client.Client implements it.
type Invoker interface {
	Invoke(ctx context.Context, command string, args map[string]any) (*structpb.Value, error)
}

// Policy names the convention tried first and the one retried on a
// parameter mismatch.
type Policy struct {
	Primary   Convention
	Alternate Convention
}

// DefaultPolicy tries camelCase, then snake_case.
func DefaultPolicy() Policy {
	return Policy{Primary: CamelCase, Alternate: SnakeCase}
}

// ParsePolicy builds a Policy from configuration strings.
func ParsePolicy(primary, alternate string) (Policy, error) {
	p, err := ParseConvention(primary)
	if err != nil {
		return Policy{}, err
	}
	a, err := ParseConvention(alternate)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Primary: p, Alternate: a}, nil
}

// Shim issues backend commands with the single-retry policy.
type Shim struct {
	invoker Invoker
	policy  Policy
	log     *logging.Logger
}

// New returns a shim over invoker.
func New(invoker Invoker, policy Policy) *Shim {
	return &Shim{
		invoker: invoker,
		policy:  policy,
		log:     logging.Get("rpc"),
	}
}

// Policy returns the shim's naming policy.
func (s *Shim) Policy() Policy { return s.policy }

// Do calls name with args shaped by the policy: the primary convention
// first, the alternate on a parameter mismatch.
func (s *Shim) Do(ctx context.Context, name string, args Args) (*structpb.Value, error) {
	primary := s.policy.Primary.Apply(args)
	alternate := s.policy.Alternate.Apply(args)
	if maps.EqualFunc(primary, alternate, func(any, any) bool { return true }) {
		alternate = nil
	}
	return s.Call(ctx, name, primary, alternate)
}

// Call invokes name with primary. When that fails with a parameter
// mismatch naming one of the expected keys and alternate is non-nil, it
// retries exactly once with alternate. Failures are returned as *Error
// carrying the first call's message and code.
func (s *Shim) Call(ctx context.Context, name string, primary, alternate Args) (*structpb.Value, error) {
	result, err := s.invoker.Invoke(ctx, name, primary)
	if err == nil {
		return result, nil
	}

	expected := append(primary.Keys(), alternate.Keys()...)
	if alternate == nil || !IsParameterMismatch(err, expected...) {
		return nil, newError(name, err)
	}

	s.log.Debug("retrying with alternate argument names",
		"command", name, "primary", primary.Keys(), "alternate", alternate.Keys(), "error", Message(err))

	result, retryErr := s.invoker.Invoke(ctx, name, alternate)
	if retryErr == nil {
		return result, nil
	}

	surfaced := newError(name, err)
	surfaced.Retried = true
	surfaced.RetryMessage = Message(retryErr)
	s.log.Warn("command failed under both conventions",
		"command", name, "error", surfaced.Message, "retry_error", surfaced.RetryMessage)
	return nil, surfaced
}

// Decode converts a command result into T.
func Decode[T any](v *structpb.Value) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	if err := flashbackv1.Decode(v, &out); err != nil {
		return out, fmt.Errorf("decoding result: %w", err)
	}
	return out, nil
}

// DecodeOptional is Decode for commands that reply null on a miss.
func DecodeOptional[T any](v *structpb.Value) (*T, error) {
	if flashbackv1.IsNull(v) {
		return nil, nil
	}
	out, err := Decode[T](v)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Invoke is Do followed by Decode.
func Invoke[T any](ctx context.Context, s *Shim, name string, args Args) (T, error) {
	v, err := s.Do(ctx, name, args)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](v)
}
