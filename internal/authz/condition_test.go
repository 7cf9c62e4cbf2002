package authz

import (
	"errors"
	"net/netip"
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, time.March, 10, hour, minute, 0, 0, time.UTC)
}

func TestTimeRangeCondition(t *testing.T) {
	cond := Condition{Kind: ConditionTimeRange, Start: "09:00", End: "17:00"}
	if err := cond.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !cond.Evaluate(RequestContext{Time: at(12, 0)}) {
		t.Fatalf("12:00 should be inside 09:00-17:00")
	}
	if cond.Evaluate(RequestContext{Time: at(20, 0)}) {
		t.Fatalf("20:00 should be outside 09:00-17:00")
	}
	if !cond.Evaluate(RequestContext{Time: at(9, 0)}) {
		t.Fatalf("start is inclusive")
	}
	if cond.Evaluate(RequestContext{Time: at(17, 0)}) {
		t.Fatalf("end is exclusive")
	}
}

func TestTimeRangeWrapsMidnight(t *testing.T) {
	cond := Condition{Kind: ConditionTimeRange, Start: "22:00", End: "06:00"}
	if !cond.Evaluate(RequestContext{Time: at(23, 30)}) {
		t.Fatalf("23:30 should be inside a wrapped window")
	}
	if !cond.Evaluate(RequestContext{Time: at(3, 0)}) {
		t.Fatalf("03:00 should be inside a wrapped window")
	}
	if cond.Evaluate(RequestContext{Time: at(12, 0)}) {
		t.Fatalf("12:00 should be outside a wrapped window")
	}
}

func TestTimeRangeAbsoluteBounds(t *testing.T) {
	cond := Condition{
		Kind:      ConditionTimeRange,
		NotBefore: at(0, 0),
		NotAfter:  at(23, 59),
	}
	if err := cond.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !cond.Evaluate(RequestContext{Time: at(12, 0)}) {
		t.Fatalf("inside absolute window")
	}
	if cond.Evaluate(RequestContext{Time: at(12, 0).AddDate(0, 0, 1)}) {
		t.Fatalf("after not_after")
	}
	if cond.Evaluate(RequestContext{Time: at(12, 0).AddDate(0, 0, -1)}) {
		t.Fatalf("before not_before")
	}
}

func TestNetworkRangeCondition(t *testing.T) {
	cond := Condition{Kind: ConditionNetworkRange, CIDR: "10.0.0.0/8"}
	if err := cond.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !cond.Evaluate(RequestContext{SourceAddr: netip.MustParseAddr("10.1.2.3")}) {
		t.Fatalf("10.1.2.3 is in 10.0.0.0/8")
	}
	if cond.Evaluate(RequestContext{SourceAddr: netip.MustParseAddr("192.168.1.1")}) {
		t.Fatalf("192.168.1.1 is not in 10.0.0.0/8")
	}
	if cond.Evaluate(RequestContext{}) {
		t.Fatalf("missing source address fails closed")
	}
}

func TestResourcePatternCondition(t *testing.T) {
	cond := Condition{Kind: ConditionResourcePattern, Pattern: "acme/web-*"}
	if !cond.Evaluate(RequestContext{Resource: "acme/web-frontend"}) {
		t.Fatalf("acme/web-frontend matches acme/web-*")
	}
	if cond.Evaluate(RequestContext{Resource: "acme/api"}) {
		t.Fatalf("acme/api does not match acme/web-*")
	}

	negated := Condition{Kind: ConditionResourcePattern, Pattern: "!acme/internal-*"}
	if !negated.Evaluate(RequestContext{Resource: "acme/api"}) {
		t.Fatalf("negated pattern passes on non-match")
	}
	if negated.Evaluate(RequestContext{Resource: "acme/internal-tools"}) {
		t.Fatalf("negated pattern fails on match")
	}
}

func TestAttributeCondition(t *testing.T) {
	cond := Condition{Kind: ConditionAttribute, Key: "env", Value: "prod"}
	if !cond.Evaluate(RequestContext{Attributes: map[string]string{"env": "prod"}}) {
		t.Fatalf("matching attribute")
	}
	if cond.Evaluate(RequestContext{Attributes: map[string]string{"env": "staging"}}) {
		t.Fatalf("non-matching attribute")
	}
	if cond.Evaluate(RequestContext{}) {
		t.Fatalf("missing attribute fails closed")
	}
}

func TestConditionValidateRejectsMalformed(t *testing.T) {
	cases := []Condition{
		{Kind: ConditionTimeRange},
		{Kind: ConditionTimeRange, Start: "09:00"},
		{Kind: ConditionTimeRange, Start: "25:00", End: "17:00"},
		{Kind: ConditionTimeRange, Start: "09:61", End: "17:00"},
		{Kind: ConditionNetworkRange, CIDR: "10.0.0.0"},
		{Kind: ConditionNetworkRange, CIDR: "not-a-cidr"},
		{Kind: ConditionResourcePattern},
		{Kind: ConditionResourcePattern, Pattern: "!"},
		{Kind: ConditionAttribute},
		{Kind: ConditionKind("geo_fence")},
	}
	for _, c := range cases {
		if err := c.Validate(); !errors.Is(err, ErrConditionConfig) {
			t.Fatalf("condition %+v: expected ErrConditionConfig, got %v", c, err)
		}
	}
}

func TestUnknownConditionKindFailsClosed(t *testing.T) {
	cond := Condition{Kind: ConditionKind("geo_fence")}
	if cond.Evaluate(RequestContext{Time: at(12, 0)}) {
		t.Fatalf("unknown kind must evaluate to false")
	}
}

func TestEvaluateAllConjunction(t *testing.T) {
	conds := []Condition{
		{Kind: ConditionTimeRange, Start: "09:00", End: "17:00"},
		{Kind: ConditionNetworkRange, CIDR: "10.0.0.0/8"},
	}
	rctx := RequestContext{Time: at(12, 0), SourceAddr: netip.MustParseAddr("10.1.2.3")}
	if !EvaluateAll(conds, rctx) {
		t.Fatalf("both conditions hold")
	}
	rctx.SourceAddr = netip.MustParseAddr("192.168.1.1")
	if EvaluateAll(conds, rctx) {
		t.Fatalf("one failing condition fails the set")
	}
	if !EvaluateAll(nil, RequestContext{}) {
		t.Fatalf("empty condition list passes")
	}
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"acme/*", "acme/api", true},
		{"acme/*", "acme/team/api", true},
		{"acme/*-service", "acme/billing-service", true},
		{"acme/*-service", "acme/billing", false},
		{"*", "anything", true},
		{"acme/api", "acme/api", true},
		{"acme/api", "acme/apid", false},
		{"", "", true},
		{"", "x", false},
	}
	for _, tc := range cases {
		if got := globMatch(tc.pattern, tc.s); got != tc.want {
			t.Fatalf("globMatch(%q, %q) = %v, want %v", tc.pattern, tc.s, got, tc.want)
		}
	}
}
