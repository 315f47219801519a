package labeler

import (
	"testing"

	"github.com/shopspring/decimal"

	"marketpulse/internal/models"
)

func TestCapCategory(t *testing.T) {
	tests := []struct {
		name string
		cap  decimal.NullDecimal
		want string
	}{
		{"null", decimal.NullDecimal{}, CapUnknown},
		{"zero", capOf(0), CapUnknown},
		{"negative", capOf(-5), CapUnknown},
		{"small", capOf(500_000_000), CapSmall},
		{"mid boundary", capOf(2_000_000_000), CapMid},
		{"mid", capOf(9_999_999_999), CapMid},
		{"large boundary", capOf(10_000_000_000), CapLarge},
		{"large", capOf(3_000_000_000_000), CapLarge},
	}
	for _, tt := range tests {
		if got := CapCategory(tt.cap); got != tt.want {
			t.Fatalf("%s: CapCategory = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name  string
		close float64
		ma20  *float64
		ma50  *float64
		ma200 *float64
		want  *string
	}{
		{"no ma200 yet", 110, f(105), f(100), nil, nil},
		{"no ma20 yet", 110, nil, f(100), f(90), nil},
		{"uptrend", 110, f(105), f(100), f(90), s(models.TrendUp)},
		{"downtrend", 90, f(95), f(100), f(110), s(models.TrendDown)},
		{"all ties", 100, f(100), f(100), f(100), s(models.TrendNeutral)},
		{"close tie with ma20", 105, f(105), f(100), f(90), s(models.TrendNeutral)},
		{"mixed ordering", 110, f(100), f(105), f(90), s(models.TrendNeutral)},
		{"close below rising stack", 95, f(105), f(100), f(90), s(models.TrendNeutral)},
	}
	for _, tt := range tests {
		got := Trend(tt.close, tt.ma20, tt.ma50, tt.ma200)
		if (got == nil) != (tt.want == nil) {
			t.Fatalf("%s: Trend = %v, want %v", tt.name, deref(got), deref(tt.want))
		}
		if got != nil && *got != *tt.want {
			t.Fatalf("%s: Trend = %q, want %q", tt.name, *got, *tt.want)
		}
	}
}

func capOf(v int64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}
}

func f(v float64) *float64 { return &v }

func s(v string) *string { return &v }

func deref(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}
