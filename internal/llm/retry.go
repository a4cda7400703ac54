package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrying decorates a Client/Embedder pair with per-call timeouts and
// bounded exponential backoff. The collaborators behind these interfaces
// have unbounded latency, so the timeout is mandatory.
type Retrying struct {
	client     Client
	embedder   Embedder
	timeout    time.Duration
	maxRetries uint64
}

func WithRetry(client Client, embedder Embedder, timeout time.Duration, maxRetries int) *Retrying {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		client:     client,
		embedder:   embedder,
		timeout:    timeout,
		maxRetries: uint64(maxRetries),
	}
}

func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := r.do(ctx, func(callCtx context.Context) error {
		var err error
		out, err = r.client.Generate(callCtx, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate: %v", ErrExternalService, err)
	}
	return out, nil
}

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: embeddings not supported by configured provider", ErrExternalService)
	}
	var out []float32
	err := r.do(ctx, func(callCtx context.Context) error {
		var err error
		out, err = r.embedder.Embed(callCtx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", ErrExternalService, err)
	}
	return out, nil
}

func (r *Retrying) do(ctx context.Context, op func(context.Context) error) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return op(callCtx)
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)
	return backoff.Retry(attempt, b)
}
