package llm

import (
	"context"
	"errors"
	"sync"
)

// FallbackProvider moves to the next provider when the current model is not found.
// Once a provider has failed that way it is skipped on later calls.
type FallbackProvider struct {
	mu        sync.Mutex
	providers []Provider
	current   int
}

func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	return &FallbackProvider{providers: providers}
}

func (f *FallbackProvider) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	start := f.current
	f.mu.Unlock()

	if len(f.providers) == 0 {
		return "", errors.New("llm: no providers configured")
	}

	var lastErr error
	for i := start; i < len(f.providers); i++ {
		text, err := f.providers[i].Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsModelNotFound(err) {
			return "", err
		}
		f.mu.Lock()
		if f.current < i+1 && i+1 < len(f.providers) {
			f.current = i + 1
		}
		f.mu.Unlock()
	}
	return "", lastErr
}
