package paygate

import (
	"context"
	"fmt"
	"sync"
)

// FakeGateway is an in-memory Gateway for tests and development. Payments
// start pending; tests flip them with Resolve.
type FakeGateway struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]Status
	Created []Ticket
}

// NewFakeGateway constructs an empty FakeGateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{tickets: make(map[string]Status)}
}

func (g *FakeGateway) Create(ctx context.Context, amount int, purpose string) (Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	ref := fmt.Sprintf("pay-%d", g.seq)
	g.tickets[ref] = StatusPending
	t := Ticket{Ref: ref, URL: "https://pay.example/" + ref, Amount: amount, Purpose: purpose}
	g.Created = append(g.Created, t)
	return t, nil
}

func (g *FakeGateway) Status(ctx context.Context, ref string) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.tickets[ref]
	if !ok {
		return "", fmt.Errorf("unknown payment %q", ref)
	}
	return st, nil
}

// Resolve sets the status a later Status poll will report.
func (g *FakeGateway) Resolve(ref string, st Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tickets[ref] = st
}
