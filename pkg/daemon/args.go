package daemon

import (
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
)

// args reads command arguments under the daemon's naming convention. Keys
// are given in camelCase and renamed before lookup, so a daemon speaking
// snake_case rejects camelCase callers exactly like an older backend would.
type args struct {
	command string
	values  map[string]any
	conv    rpc.Convention
}

func (a args) missing(key string) error {
	return status.Errorf(codes.InvalidArgument,
		"invalid args `%s` for command `%s`: command %s missing required key %s",
		key, a.command, a.command, key)
}

func (a args) invalid(key, want string) error {
	return status.Errorf(codes.InvalidArgument,
		"invalid args `%s` for command `%s`: expected %s", key, a.command, want)
}

func (a args) lookup(key string) (string, any, bool) {
	wire := a.conv.Key(key)
	v, ok := a.values[wire]
	if ok && v == nil {
		ok = false
	}
	return wire, v, ok
}

func (a args) requireString(key string) (string, error) {
	wire, v, ok := a.lookup(key)
	if !ok {
		return "", a.missing(wire)
	}
	s, isString := v.(string)
	if !isString {
		return "", a.invalid(wire, "a string")
	}
	return s, nil
}

func (a args) optionalString(key string) (string, error) {
	wire, v, ok := a.lookup(key)
	if !ok {
		return "", nil
	}
	s, isString := v.(string)
	if !isString {
		return "", a.invalid(wire, "a string")
	}
	return s, nil
}

func (a args) optionalBool(key string) (bool, error) {
	wire, v, ok := a.lookup(key)
	if !ok {
		return false, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, a.invalid(wire, "a boolean")
	}
	return b, nil
}

func (a args) requireInt(key string) (int, error) {
	wire, v, ok := a.lookup(key)
	if !ok {
		return 0, a.missing(wire)
	}
	f, isNumber := v.(float64)
	if !isNumber || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, a.invalid(wire, "a non-negative integer")
	}
	return int(f), nil
}

func (a args) optionalStrings(key string) ([]string, error) {
	wire, v, ok := a.lookup(key)
	if !ok {
		return nil, nil
	}
	list, isList := v.([]any)
	if !isList {
		return nil, a.invalid(wire, "a list of strings")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, isString := item.(string)
		if !isString {
			return nil, a.invalid(wire, "a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// decode reads a required object argument into out.
func (a args) decode(key string, out any) error {
	wire, v, ok := a.lookup(key)
	if !ok {
		return a.missing(wire)
	}
	if _, isObject := v.(map[string]any); !isObject {
		return a.invalid(wire, "an object")
	}
	value, err := flashbackv1.ToValue(v)
	if err != nil {
		return a.invalid(wire, "an object")
	}
	if err := flashbackv1.Decode(value, out); err != nil {
		return a.invalid(wire, err.Error())
	}
	return nil
}
