package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu      sync.Mutex
	pending []Message
	batches int
}

func (s *fakeStore) ProcessBatch(ctx context.Context, limit int, deliver func(context.Context, Message) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++

	delivered := 0
	remaining := s.pending[:0]
	for _, m := range s.pending {
		if err := deliver(ctx, m); err != nil {
			m.Attempts++
			remaining = append(remaining, m)
			continue
		}
		delivered++
	}
	s.pending = remaining
	return delivered, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	failKinds map[Kind]bool
	published []Message
}

func (p *fakePublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKinds[msg.Kind] {
		return errors.New("transport down")
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestDispatcherDrainsPending(t *testing.T) {
	store := &fakeStore{pending: []Message{
		{ID: 1, EventID: "ev-1", Kind: KindDisputeAssigned},
		{ID: 2, EventID: "ev-2", Kind: KindDisputeSubmitted},
	}}
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, 10, 5*time.Millisecond, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := pub.count(); got != 2 {
		t.Errorf("published %d messages, want 2", got)
	}
	store.mu.Lock()
	left := len(store.pending)
	store.mu.Unlock()
	if left != 0 {
		t.Errorf("%d messages left pending", left)
	}
}

func TestDispatcherKeepsFailedMessagesPending(t *testing.T) {
	store := &fakeStore{pending: []Message{
		{ID: 1, EventID: "ev-1", Kind: KindDisputeRejected},
		{ID: 2, EventID: "ev-2", Kind: KindDisputeAccepted},
	}}
	pub := &fakePublisher{failKinds: map[Kind]bool{KindDisputeRejected: true}}
	d := NewDispatcher(store, pub, 10, 5*time.Millisecond, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := pub.count(); got != 1 {
		t.Errorf("published %d messages, want 1", got)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.pending) != 1 || store.pending[0].EventID != "ev-1" {
		t.Errorf("failed message must stay pending, got %+v", store.pending)
	}
	if store.pending[0].Attempts == 0 {
		t.Error("failed message must accrue attempts")
	}
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	store := &fakeStore{}
	d := NewDispatcher(store, &fakePublisher{}, 10, time.Millisecond, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run after cancel: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestDispatcherDefaults(t *testing.T) {
	d := NewDispatcher(&fakeStore{}, &fakePublisher{}, 0, 0, 0)
	if d.batch <= 0 || d.interval <= 0 || d.workers <= 0 {
		t.Errorf("defaults not applied: %+v", d)
	}
}
