package authz

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// ConditionKind tags the closed set of predicate variants. Composite boolean
// logic is expressed structurally: conditions on one permission are ANDed,
// independent permissions on the same (resource, action) pair are ORed.
type ConditionKind string

const (
	ConditionTimeRange       ConditionKind = "time_range"
	ConditionNetworkRange    ConditionKind = "network_range"
	ConditionResourcePattern ConditionKind = "resource_pattern"
	ConditionAttribute       ConditionKind = "attribute"
)

// Condition is a pure predicate over a request context. Conditions are
// validated when the owning role is created; Evaluate assumes that and fails
// closed on anything malformed it encounters anyway.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// Day-local window as "HH:MM" clock values. End may precede Start for
	// windows crossing midnight.
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
	// Absolute window. Zero values leave the corresponding bound open.
	NotBefore time.Time `json:"not_before,omitempty"`
	NotAfter  time.Time `json:"not_after,omitempty"`

	// NetworkRange.
	CIDR string `json:"cidr,omitempty"`

	// ResourcePattern glob, case-sensitive. A leading '!' negates the match.
	Pattern string `json:"pattern,omitempty"`

	// Attribute equality.
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// RequestContext carries the facts a condition may inspect. It is supplied by
// the caller along with the already-authenticated subject.
type RequestContext struct {
	Time       time.Time
	SourceAddr netip.Addr
	Resource   string
	Attributes map[string]string
}

// Validate rejects malformed conditions so they never reach evaluation.
func (c Condition) Validate() error {
	switch c.Kind {
	case ConditionTimeRange:
		hasClock := c.Start != "" || c.End != ""
		hasAbsolute := !c.NotBefore.IsZero() || !c.NotAfter.IsZero()
		if !hasClock && !hasAbsolute {
			return fmt.Errorf("%w: time_range requires a window", ErrConditionConfig)
		}
		if hasClock {
			if c.Start == "" || c.End == "" {
				return fmt.Errorf("%w: time_range clock window requires both start and end", ErrConditionConfig)
			}
			if _, err := parseClock(c.Start); err != nil {
				return fmt.Errorf("%w: start %q: %v", ErrConditionConfig, c.Start, err)
			}
			if _, err := parseClock(c.End); err != nil {
				return fmt.Errorf("%w: end %q: %v", ErrConditionConfig, c.End, err)
			}
		}
		if !c.NotBefore.IsZero() && !c.NotAfter.IsZero() && c.NotAfter.Before(c.NotBefore) {
			return fmt.Errorf("%w: not_after precedes not_before", ErrConditionConfig)
		}
		return nil
	case ConditionNetworkRange:
		if _, err := netip.ParsePrefix(c.CIDR); err != nil {
			return fmt.Errorf("%w: cidr %q: %v", ErrConditionConfig, c.CIDR, err)
		}
		return nil
	case ConditionResourcePattern:
		if strings.TrimPrefix(c.Pattern, "!") == "" {
			return fmt.Errorf("%w: resource_pattern requires a pattern", ErrConditionConfig)
		}
		return nil
	case ConditionAttribute:
		if strings.TrimSpace(c.Key) == "" {
			return fmt.Errorf("%w: attribute requires a key", ErrConditionConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrConditionConfig, c.Kind)
	}
}

// Evaluate reports whether the condition holds for the request. A condition
// that fails to parse evaluates to false.
func (c Condition) Evaluate(rctx RequestContext) bool {
	switch c.Kind {
	case ConditionTimeRange:
		return c.evaluateTime(rctx.Time)
	case ConditionNetworkRange:
		prefix, err := netip.ParsePrefix(c.CIDR)
		if err != nil || !rctx.SourceAddr.IsValid() {
			return false
		}
		return prefix.Contains(rctx.SourceAddr.Unmap())
	case ConditionResourcePattern:
		pattern := c.Pattern
		negate := strings.HasPrefix(pattern, "!")
		if negate {
			pattern = pattern[1:]
		}
		if pattern == "" {
			return false
		}
		matched := globMatch(pattern, rctx.Resource)
		if negate {
			return !matched
		}
		return matched
	case ConditionAttribute:
		v, ok := rctx.Attributes[c.Key]
		return ok && v == c.Value
	default:
		return false
	}
}

func (c Condition) evaluateTime(now time.Time) bool {
	if now.IsZero() {
		return false
	}
	if !c.NotBefore.IsZero() && now.Before(c.NotBefore) {
		return false
	}
	if !c.NotAfter.IsZero() && now.After(c.NotAfter) {
		return false
	}
	if c.Start == "" && c.End == "" {
		return !c.NotBefore.IsZero() || !c.NotAfter.IsZero()
	}
	start, err := parseClock(c.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(c.End)
	if err != nil {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Window crosses midnight.
	return minute >= start || minute < end
}

// EvaluateAll conjoins a permission's condition list. An empty list passes.
func EvaluateAll(conds []Condition, rctx RequestContext) bool {
	for _, c := range conds {
		if !c.Evaluate(rctx) {
			return false
		}
	}
	return true
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour")
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute")
	}
	return hour*60 + minute, nil
}

// globMatch reports whether s matches pattern, where '*' matches any run of
// characters (including path separators). Matching is case-sensitive.
func globMatch(pattern, s string) bool {
	var pi, si int
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && pattern[pi] == '*':
			star, mark = pi, si
			pi++
		case pi < len(pattern) && pattern[pi] == s[si]:
			pi++
			si++
		case star >= 0:
			mark++
			pi, si = star+1, mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
