// Package poll implements the customer-facing order status watcher: a
// ticker loop that observes one order until it reaches a resting state.
package poll

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/brasaspos/api/internal/enum"
	"github.com/google/uuid"
)

// DefaultInterval is used when a watcher is built with a non-positive
// interval.
const DefaultInterval = 10 * time.Second

// Fetcher retrieves the current status of an order. Implementations talk to
// the lean status endpoint, not the full order payload.
type Fetcher interface {
	FetchStatus(ctx context.Context, orderID uuid.UUID) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, orderID uuid.UUID) (string, error)

func (f FetcherFunc) FetchStatus(ctx context.Context, orderID uuid.UUID) (string, error) {
	return f(ctx, orderID)
}

// Watcher polls a single order on a fixed interval and reports status
// changes. Polls run sequentially inside Run's goroutine, so a slow fetch
// never overlaps the next one; a tick that arrives mid-fetch is simply the
// next fire.
type Watcher struct {
	fetcher  Fetcher
	interval time.Duration
	onChange func(oldStatus, newStatus string)

	mu   sync.Mutex
	last string
}

// NewWatcher builds a watcher. onChange may be nil; it fires only when the
// observed status actually differs from the previous one.
func NewWatcher(f Fetcher, interval time.Duration, onChange func(oldStatus, newStatus string)) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{fetcher: f, interval: interval, onChange: onChange}
}

// Status returns the last status the watcher observed.
func (w *Watcher) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Run watches orderID starting from the given status until the order comes
// to rest or ctx is cancelled, then returns the last-known status. A failed
// fetch keeps the previous status and retries on the next tick.
func (w *Watcher) Run(ctx context.Context, orderID uuid.UUID, initial string) string {
	w.setLast(initial)
	if resting(initial) {
		return initial
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.Status()
		case <-ticker.C:
			status, err := w.fetcher.FetchStatus(ctx, orderID)
			if err != nil {
				if ctx.Err() != nil {
					return w.Status()
				}
				log.Printf("WARN: poll order %s: %v", orderID, err)
				continue
			}
			prev := w.Status()
			if status != prev {
				w.setLast(status)
				if w.onChange != nil {
					w.onChange(prev, status)
				}
			}
			if resting(status) {
				return status
			}
		}
	}
}

func (w *Watcher) setLast(status string) {
	w.mu.Lock()
	w.last = status
	w.mu.Unlock()
}

// resting reports whether the status ends the watch. ARRIVED is included:
// once the courier is at the door the customer view has nothing left to
// track, even though the order itself settles later.
func resting(status string) bool {
	return enum.IsTerminalStatus(status) || status == enum.OrderStatusArrived
}
