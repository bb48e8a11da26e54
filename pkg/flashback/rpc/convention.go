package rpc

import (
	"fmt"
	"strings"
	"unicode"
)

// Convention is a parameter naming scheme used by one backend version.
type Convention int

// Conventions seen across backend versions.
const (
	CamelCase Convention = iota
	SnakeCase
)

func (c Convention) String() string {
	switch c {
	case CamelCase:
		return "camel"
	case SnakeCase:
		return "snake"
	default:
		return "unknown"
	}
}

// ParseConvention accepts "camel"/"camelCase" and "snake"/"snake_case".
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "camel", "camelcase", "":
		return CamelCase, nil
	case "snake", "snake_case", "snakecase":
		return SnakeCase, nil
	default:
		return CamelCase, fmt.Errorf("unknown argument convention %q", s)
	}
}

// Key renames one top-level argument key into this convention.
func (c Convention) Key(key string) string {
	if c == SnakeCase {
		return toSnake(key)
	}
	return toCamel(key)
}

// Apply renames the top-level keys of args. Values are left untouched:
// nested payloads such as a project input have their own fixed schema.
func (c Convention) Apply(args Args) Args {
	if args == nil {
		return nil
	}
	out := make(Args, len(args))
	for k, v := range args {
		out[c.Key(k)] = v
	}
	return out
}

func toSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
