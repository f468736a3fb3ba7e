// Package limits implements sliding-window rate limiting over the amount of
// a pair the keeper is allowed to trade in a given period, independent of
// the band configuration that decides prices and sizes.
package limits

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/decimal"
)

// Placement is one recorded use of a limit rule's capacity.
type Placement struct {
	Amount decimal.Decimal
	At     time.Time
}

// Limit is a single "cap per period" rule, e.g. "no more than 1000 DAI
// traded per rolling 24 hours".
type Limit struct {
	Cap    decimal.Decimal
	Period time.Duration

	mu      sync.Mutex
	history []Placement
}

// ParsePeriod parses a duration string of the form "<N><unit>" where unit is
// one of s, m, h, d, w (seconds, minutes, hours, days, weeks).
func ParsePeriod(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("limits: invalid period %q", s)
	}
	unit := s[len(s)-1]
	numPart := s[:len(s)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("limits: invalid period %q: %w", s, err)
	}
	var unitDur time.Duration
	switch unit {
	case 's':
		unitDur = time.Second
	case 'm':
		unitDur = time.Minute
	case 'h':
		unitDur = time.Hour
	case 'd':
		unitDur = 24 * time.Hour
	case 'w':
		unitDur = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("limits: unknown period unit %q in %q", string(unit), s)
	}
	return time.Duration(n) * unitDur, nil
}

// NewLimit builds a Limit from a cap and a period string such as "4h".
func NewLimit(cap decimal.Decimal, periodStr string) (*Limit, error) {
	period, err := ParsePeriod(periodStr)
	if err != nil {
		return nil, err
	}
	return &Limit{Cap: cap, Period: period}, nil
}

// Available returns the remaining capacity of this rule as of now, after
// discarding history entries that have fallen out of the window.
func (l *Limit) Available(now time.Time) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	used := decimal.Zero
	cutoff := now.Add(-l.Period)
	kept := l.history[:0:0]
	for _, p := range l.history {
		if p.At.After(cutoff) {
			used = used.Add(p.Amount)
			kept = append(kept, p)
		}
	}
	l.history = kept

	remaining := l.Cap.Sub(used)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Use records amount as consumed against this rule's capacity.
func (l *Limit) Use(amount decimal.Decimal, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, Placement{Amount: amount, At: at})
}

// Limits is a named collection of Limit rules for one pair/side. The binding
// constraint is always the tightest rule.
type Limits struct {
	rules []*Limit
}

// NewLimits creates a Limits enforcer over rules. Callers supply "now" on
// every call rather than the Limits reading a clock itself, so a single
// control loop's cycle timestamp is used consistently for both sides.
func NewLimits(rules ...*Limit) *Limits {
	return &Limits{rules: rules}
}

// unboundedCap mirrors the original implementation's "no limit" sentinel:
// an amount no real balance could ever reach.
var unboundedCap = decimal.NewFromInt(1).Shift(30)

// AvailableLimit returns the minimum availability across all configured
// rules, or an effectively unbounded amount when no rules are configured.
func (l *Limits) AvailableLimit(now time.Time) decimal.Decimal {
	if len(l.rules) == 0 {
		return unboundedCap
	}
	min := unboundedCap
	for _, r := range l.rules {
		avail := r.Available(now)
		if avail.LessThan(min) {
			min = avail
		}
	}
	return min
}

// UseLimit records amount as used against every configured rule.
func (l *Limits) UseLimit(amount decimal.Decimal, now time.Time) {
	for _, r := range l.rules {
		r.Use(amount, now)
	}
}

// BindingRule returns the index of the rule with the least remaining
// capacity as of now, and that capacity. It returns (-1, unboundedCap) when
// no rules are configured, so operators can tell "no limit configured" apart
// from "limit configured but not currently binding".
func (l *Limits) BindingRule(now time.Time) (index int, available decimal.Decimal) {
	if len(l.rules) == 0 {
		return -1, unboundedCap
	}
	minIdx := 0
	min := l.rules[0].Available(now)
	for i := 1; i < len(l.rules); i++ {
		avail := l.rules[i].Available(now)
		if avail.LessThan(min) {
			min = avail
			minIdx = i
		}
	}
	return minIdx, min
}

// ParseRuleSpec parses "<cap>/<period>" rule specifications, e.g.
// "1000/1d". The bands document's limit lists do not use this shorthand;
// they are built from period/amount objects via NewLimit.
func ParseRuleSpec(spec string) (*Limit, error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("limits: invalid rule spec %q, expected <cap>/<period>", spec)
	}
	cap, err := decimal.NewFromString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("limits: invalid cap in rule spec %q: %w", spec, err)
	}
	return NewLimit(cap, parts[1])
}
