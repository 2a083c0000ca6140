package llm

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// DefaultPromptBudget caps an assembled reading prompt. The fixed sections
// take under half of it; the rest is room for intention and hints.
const DefaultPromptBudget = 4000

var ErrPromptTooLong = errors.New("prompt exceeds token budget")

// EstimateTokens approximates a token count at four characters per token,
// counting runes so the prompt's typographic marks are not overcounted.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// Budget bounds one completion call in estimated tokens. A zero Prompt
// accepts any prompt.
type Budget struct {
	Prompt int
	Output int
}

// Check returns the prompt estimate, or ErrPromptTooLong past b.Prompt.
func (b Budget) Check(prompt string) (int, error) {
	n := EstimateTokens(prompt)
	if b.Prompt > 0 && n > b.Prompt {
		return n, fmt.Errorf("%w: about %d tokens, budget %d", ErrPromptTooLong, n, b.Prompt)
	}
	return n, nil
}

// Total is what the call may consume: the prompt plus the requested output.
func (b Budget) Total(prompt string) int {
	return EstimateTokens(prompt) + b.Output
}
