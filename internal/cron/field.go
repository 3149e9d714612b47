// Package cron parses the five-field cron definitions exposed by the game
// panel's job scheduler and expands them into concrete occurrence instants.
//
// The panel's dialect is deliberately lenient: a field is a comma-separated
// list of range[/step] parts, tokens may be names (jan, mon, ...), and
// malformed fragments are dropped rather than rejected so one bad field
// degrades a schedule instead of aborting a whole sync.
package cron

import (
	"strconv"
	"strings"
)

// Field is the parsed form of a single cron position. When All is true the
// field matches every value in its domain and Values is empty.
type Field struct {
	All    bool
	Values []int
}

// Contains reports whether v matches this field.
func (f Field) Contains(v int) bool {
	if f.All {
		return true
	}
	for _, value := range f.Values {
		if value == v {
			return true
		}
	}
	return false
}

// First returns the smallest accepted value, or def when the field is a
// wildcard or matched nothing.
func (f Field) First(def int) int {
	if f.All || len(f.Values) == 0 {
		return def
	}
	return f.Values[0]
}

// ParseField parses one cron field expression against the domain [min, max].
//
// names maps case-insensitive tokens to integers (e.g. "jan" -> 1); normalize
// rewrites each generated value before the bounds check (e.g. weekday 7 -> 0);
// wrap allows descending ranges such as "fri-mon" to run through the end of
// the domain and back around.
//
// ParseField never fails: empty input, "*" and "?" yield a wildcard, and the
// worst case for anything else is an empty value set.
func ParseField(raw string, min, max int, names map[string]int, normalize func(int) int, wrap bool) Field {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "*" || raw == "?" {
		return Field{All: true}
	}
	if normalize == nil {
		normalize = func(v int) int { return v }
	}

	seen := make(map[int]bool)
	add := func(v int) {
		v = normalize(v)
		if v < min || v > max {
			return
		}
		seen[v] = true
	}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		rangePart := part
		step := 1
		if idx := strings.Index(part, "/"); idx >= 0 {
			rangePart = part[:idx]
			parsed, err := strconv.Atoi(strings.TrimSpace(part[idx+1:]))
			if err != nil || parsed <= 0 {
				continue
			}
			step = parsed
		}

		var start, end int
		switch {
		case rangePart == "*":
			start, end = min, max
		case strings.Contains(rangePart, "-"):
			startToken, endToken, _ := strings.Cut(rangePart, "-")
			startValue, ok := resolveToken(startToken, names)
			if !ok {
				continue
			}
			endValue, ok := resolveToken(endToken, names)
			if !ok {
				continue
			}
			start, end = startValue, endValue
		default:
			single, ok := resolveToken(rangePart, names)
			if !ok {
				continue
			}
			start, end = single, single
		}

		if start > end && wrap {
			for v := start; v <= max; v += step {
				add(v)
			}
			for v := min; v <= end; v += step {
				add(v)
			}
			continue
		}
		for v := start; v <= end; v += step {
			add(v)
		}
	}

	values := make([]int, 0, len(seen))
	for v := min; v <= max; v++ {
		if seen[v] {
			values = append(values, v)
		}
	}
	return Field{Values: values}
}

// resolveToken maps a token to its integer value via the name table or a
// numeric literal. "*" inside a range position is not a valid token.
func resolveToken(token string, names map[string]int) (int, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" || token == "*" {
		return 0, false
	}
	if names != nil {
		if v, ok := names[token]; ok {
			return v, true
		}
	}
	v, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	return v, true
}
