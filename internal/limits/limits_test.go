package limits

import (
	"testing"
	"time"

	"github.com/yanun0323/decimal"
)

func TestParsePeriod(t *testing.T) {
	testCases := []struct {
		desc    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", "30s", 30 * time.Second, false},
		{"minutes", "5m", 5 * time.Minute, false},
		{"hours", "4h", 4 * time.Hour, false},
		{"days", "2d", 48 * time.Hour, false},
		{"weeks", "1w", 7 * 24 * time.Hour, false},
		{"missing unit", "5", 0, true},
		{"unknown unit", "5x", 0, true},
		{"non-numeric", "ad", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := ParsePeriod(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ParsePeriod(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestLimitAvailableAndUse(t *testing.T) {
	l, err := NewLimit(decimal.NewFromInt(100), "1h")
	if err != nil {
		t.Fatalf("NewLimit: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)
	if avail := l.Available(now); !avail.Sub(decimal.NewFromInt(100)).IsZero() {
		t.Fatalf("initial Available() = %s, want 100", avail)
	}

	l.Use(decimal.NewFromInt(40), now)
	if avail := l.Available(now); !avail.Sub(decimal.NewFromInt(60)).IsZero() {
		t.Fatalf("Available() after use = %s, want 60", avail)
	}

	// Past the window, the earlier usage falls out.
	later := now.Add(2 * time.Hour)
	if avail := l.Available(later); !avail.Sub(decimal.NewFromInt(100)).IsZero() {
		t.Fatalf("Available() after window = %s, want 100", avail)
	}
}

func TestLimitAvailableNeverNegative(t *testing.T) {
	l, err := NewLimit(decimal.NewFromInt(10), "1h")
	if err != nil {
		t.Fatalf("NewLimit: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	l.Use(decimal.NewFromInt(50), now)
	if avail := l.Available(now); !avail.IsZero() {
		t.Fatalf("Available() after overuse = %s, want 0", avail)
	}
}

func TestLimitsAvailableLimitAndBindingRule(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tight, _ := NewLimit(decimal.NewFromInt(50), "1h")
	loose, _ := NewLimit(decimal.NewFromInt(1000), "1d")
	ls := NewLimits(tight, loose)

	idx, avail := ls.BindingRule(now)
	if idx != 0 {
		t.Fatalf("BindingRule() index = %d, want 0 (tight rule)", idx)
	}
	if !avail.Sub(decimal.NewFromInt(50)).IsZero() {
		t.Fatalf("BindingRule() available = %s, want 50", avail)
	}

	if got := ls.AvailableLimit(now); !got.Sub(decimal.NewFromInt(50)).IsZero() {
		t.Fatalf("AvailableLimit() = %s, want 50", got)
	}

	ls.UseLimit(decimal.NewFromInt(10), now)
	idx, avail = ls.BindingRule(now)
	if idx != 0 {
		t.Fatalf("BindingRule() index after use = %d, want 0", idx)
	}
	if !avail.Sub(decimal.NewFromInt(40)).IsZero() {
		t.Fatalf("BindingRule() available after use = %s, want 40", avail)
	}
}

func TestLimitsBindingRuleNoRules(t *testing.T) {
	ls := NewLimits()
	idx, avail := ls.BindingRule(time.Now())
	if idx != -1 {
		t.Fatalf("BindingRule() index = %d, want -1 for no rules", idx)
	}
	if !avail.Sub(unboundedCap).IsZero() {
		t.Fatalf("BindingRule() available = %s, want unboundedCap", avail)
	}
}

func TestLimitsBindingRuleSwitchesAsRulesDrain(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	a, _ := NewLimit(decimal.NewFromInt(100), "1h")
	b, _ := NewLimit(decimal.NewFromInt(100), "1h")
	ls := NewLimits(a, b)

	idx, _ := ls.BindingRule(now)
	if idx != 0 {
		t.Fatalf("BindingRule() index = %d, want 0 when tied, first rule wins", idx)
	}

	a.Use(decimal.NewFromInt(90), now)
	idx, avail := ls.BindingRule(now)
	if idx != 0 {
		t.Fatalf("BindingRule() index after draining rule a = %d, want 0", idx)
	}
	if !avail.Sub(decimal.NewFromInt(10)).IsZero() {
		t.Fatalf("BindingRule() available = %s, want 10", avail)
	}

	b.Use(decimal.NewFromInt(95), now)
	idx, avail = ls.BindingRule(now)
	if idx != 1 {
		t.Fatalf("BindingRule() index after draining rule b further = %d, want 1", idx)
	}
	if !avail.Sub(decimal.NewFromInt(5)).IsZero() {
		t.Fatalf("BindingRule() available = %s, want 5", avail)
	}
}

func TestParseRuleSpec(t *testing.T) {
	testCases := []struct {
		desc    string
		spec    string
		wantCap decimal.Decimal
		wantErr bool
	}{
		{"valid spec", "1000/1d", decimal.NewFromInt(1000), false},
		{"missing slash", "1000", decimal.Zero, true},
		{"bad cap", "abc/1d", decimal.Zero, true},
		{"bad period", "1000/1y", decimal.Zero, true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			l, err := ParseRuleSpec(tc.spec)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !l.Cap.Sub(tc.wantCap).IsZero() {
				t.Fatalf("ParseRuleSpec(%q).Cap = %s, want %s", tc.spec, l.Cap, tc.wantCap)
			}
		})
	}
}
