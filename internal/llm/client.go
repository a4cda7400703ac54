package llm

import (
	"context"
	"errors"
)

// ErrExternalService wraps failures of the LLM and embedding collaborators
// after retries are exhausted. The affected unit of work (one paper, one
// candidate pair) is skipped; the batch continues.
var ErrExternalService = errors.New("external service failure")

type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
