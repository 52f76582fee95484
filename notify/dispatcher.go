package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Publisher hands a claimed message to the transport. Implementations must
// tolerate redelivery; consumers deduplicate on the event id.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// OutboxStore abstracts the claim-deliver-mark cycle for testability.
type OutboxStore interface {
	ProcessBatch(ctx context.Context, limit int, deliver func(context.Context, Message) error) (int, error)
}

// Dispatcher drains the outbox on an interval with a small worker fan-out.
// Publish failures are counted and logged, never propagated to the writers
// that enqueued the events.
type Dispatcher struct {
	store    OutboxStore
	pub      Publisher
	batch    int
	interval time.Duration
	workers  int
}

func NewDispatcher(store OutboxStore, pub Publisher, batch int, interval time.Duration, workers int) *Dispatcher {
	if batch <= 0 {
		batch = 10
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{store: store, pub: pub, batch: batch, interval: interval, workers: workers}
}

// Run blocks until ctx is cancelled, then returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			ticker := time.NewTicker(d.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := d.store.ProcessBatch(ctx, d.batch, d.deliver); err != nil {
						if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
							return nil
						}
						log.Printf("notify: outbox batch: %v", err)
					}
				}
			}
		})
	}
	return g.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) error {
	if err := d.pub.Publish(ctx, msg); err != nil {
		publishFailedTotal.Inc()
		log.Printf("notify: publish event %s (attempt %d): %v", msg.EventID, msg.Attempts+1, err)
		return err
	}
	publishedTotal.Inc()
	return nil
}
