package gen

import (
	"context"
	"sync"
)

// FakeGenerator is an in-memory Generator for tests. It replays scripted
// replies in order and records every request it saw.
type FakeGenerator struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Calls   []FakeCall
}

// FakeCall is one recorded Generate invocation.
type FakeCall struct {
	System string
	Turns  []Turn
}

func (f *FakeGenerator) Generate(ctx context.Context, system string, turns []Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{System: system, Turns: turns})
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Replies) == 0 {
		return "", ErrEmptyCompletion
	}
	reply := f.Replies[0]
	f.Replies = f.Replies[1:]
	return reply, nil
}
