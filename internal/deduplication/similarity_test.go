package deduplication

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"Checkout CHARGES customers TWICE!":  "checkout charge customer double",
		"  login---button,   broken  ":       "login button broken",
		"surcharges stay":                    "surcharges stay",
		"snake_case stays together":          "snake_case stays together",
		"":                                   "",
		"!!!":                                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestKeywordOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Login button broken", "login button broken", 1},
		{"subset scores against the smaller set", "login broken", "the login button is broken on mobile", 1},
		{"synonyms fold", "Customers charged twice", "customer charged double", 1},
		{"half", "login button", "login form", 0.5},
		{"disjoint", "header logo", "footer links", 0},
		{"empty side", "", "anything", 0},
		{"repeated words count once", "broken broken broken", "broken", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, KeywordOverlap(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, KeywordOverlap(tt.b, tt.a), 1e-9, "symmetric")
		})
	}
}
