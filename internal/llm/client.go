package llm

import "context"

// Completer turns one prompt into one completion. Implementations must honour
// ctx cancellation; the caller owns the timeout.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return f(ctx, prompt, temperature, maxTokens)
}
