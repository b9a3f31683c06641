package toolsel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// condition is a compiled predicate over the selection context.
type condition func(ctx map[string]any) bool

// Grammar: "context.<key> <op> <value>" where op is one of
// ==, !=, <, <=, >, >=, in. String values are quoted with ' or ",
// set membership takes a bracketed list. Anything else fails to
// compile; nothing is evaluated from strings at selection time.
var condRe = regexp.MustCompile(`^context\.(\w+)\s*(==|!=|<=|>=|<|>|\bin\b)\s*(.+)$`)

func compileCondition(expr string) (condition, error) {
	m := condRe.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return nil, fmt.Errorf("toolsel: cannot parse condition %q", expr)
	}
	key, op, rhs := m[1], m[2], strings.TrimSpace(m[3])

	switch op {
	case "==", "!=":
		want := unquote(rhs)
		wantNum, numeric := parseNumber(rhs)

		return func(ctx map[string]any) bool {
			v, ok := ctx[key]
			if !ok {
				return false
			}
			eq := false
			if num, isNum := toFloat(v); isNum && numeric {
				eq = num == wantNum
			} else {
				eq = fmt.Sprintf("%v", v) == want
			}
			if op == "!=" {
				return !eq
			}

			return eq
		}, nil

	case "in":
		members, err := parseList(rhs)
		if err != nil {
			return nil, fmt.Errorf("toolsel: condition %q: %w", expr, err)
		}

		return func(ctx map[string]any) bool {
			v, ok := ctx[key]
			if !ok {
				return false
			}
			s := fmt.Sprintf("%v", v)
			for _, member := range members {
				if s == member {
					return true
				}
			}

			return false
		}, nil

	case "<", "<=", ">", ">=":
		want, ok := parseNumber(rhs)
		if !ok {
			return nil, fmt.Errorf("toolsel: condition %q: %q is not numeric", expr, rhs)
		}

		return func(ctx map[string]any) bool {
			v, isNum := toFloat(ctx[key])
			if !isNum {
				return false
			}
			switch op {
			case "<":
				return v < want
			case "<=":
				return v <= want
			case ">":
				return v > want
			default:
				return v >= want
			}
		}, nil
	}

	return nil, fmt.Errorf("toolsel: unsupported operator %q in %q", op, expr)
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}

	return s
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)

	return f, err == nil
}

func parseList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("set membership needs a bracketed list, got %q", s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, nil
	}

	parts := strings.Split(inner, ",")
	members := make([]string, 0, len(parts))
	for _, p := range parts {
		members = append(members, unquote(strings.TrimSpace(p)))
	}

	return members, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return parseNumber(n)
	default:
		return 0, false
	}
}
