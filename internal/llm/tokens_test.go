package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"Fool", 1},
		{"The Star", 2},
		{"≈ 170–220 words", 4},
		{strings.Repeat("ᚠ", 9), 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBudgetCheck(t *testing.T) {
	b := Budget{Prompt: 10, Output: 900}

	n, err := b.Check(strings.Repeat("a", 40))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 910, b.Total(strings.Repeat("a", 40)))

	n, err = b.Check(strings.Repeat("a", 41))
	assert.ErrorIs(t, err, ErrPromptTooLong)
	assert.Equal(t, 11, n)

	_, err = Budget{}.Check(strings.Repeat("a", 1<<16))
	assert.NoError(t, err, "zero budget is unbounded")
}
