package render

import (
	"context"
	"sync"
)

// FakeRenderer is an in-memory Renderer for tests.
type FakeRenderer struct {
	mu       sync.Mutex
	Path     string
	Err      error
	Requests []Request
}

func (f *FakeRenderer) Render(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return "", f.Err
	}
	if f.Path == "" {
		return "/tmp/card.png", nil
	}
	return f.Path, nil
}
