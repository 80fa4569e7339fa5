package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brasaspos/api/internal/enum"
	"github.com/google/uuid"
)

// scriptedFetcher returns statuses in sequence, holding the final one once
// the script runs out.
type scriptedFetcher struct {
	mu     sync.Mutex
	script []string
	errAt  map[int]error
	calls  int
}

func (f *scriptedFetcher) FetchStatus(_ context.Context, _ uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if err, ok := f.errAt[i]; ok {
		return "", err
	}
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i], nil
}

func TestWatcher_ObservesUntilDelivered(t *testing.T) {
	fetcher := &scriptedFetcher{script: []string{
		enum.OrderStatusTaken,
		enum.OrderStatusReady,
		enum.OrderStatusEnRoute,
		enum.OrderStatusDelivered,
	}}
	var changes []string
	w := NewWatcher(fetcher, time.Millisecond, func(oldStatus, newStatus string) {
		changes = append(changes, oldStatus+">"+newStatus)
	})

	final := w.Run(context.Background(), uuid.New(), enum.OrderStatusTaken)
	if final != enum.OrderStatusDelivered {
		t.Fatalf("final = %s, want DELIVERED", final)
	}
	want := []string{"TAKEN>READY", "READY>EN_ROUTE", "EN_ROUTE>DELIVERED"}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change[%d] = %s, want %s", i, changes[i], want[i])
		}
	}
}

func TestWatcher_StopsOnArrived(t *testing.T) {
	fetcher := &scriptedFetcher{script: []string{enum.OrderStatusArrived}}
	w := NewWatcher(fetcher, time.Millisecond, nil)

	final := w.Run(context.Background(), uuid.New(), enum.OrderStatusEnRoute)
	if final != enum.OrderStatusArrived {
		t.Fatalf("final = %s, want ARRIVED", final)
	}
}

func TestWatcher_StopsOnCancelled(t *testing.T) {
	fetcher := &scriptedFetcher{script: []string{enum.OrderStatusCancelled}}
	w := NewWatcher(fetcher, time.Millisecond, nil)

	final := w.Run(context.Background(), uuid.New(), enum.OrderStatusTaken)
	if final != enum.OrderStatusCancelled {
		t.Fatalf("final = %s, want CANCELLED", final)
	}
}

func TestWatcher_AlreadyRestingSkipsPolling(t *testing.T) {
	fetcher := &scriptedFetcher{script: []string{enum.OrderStatusDelivered}}
	w := NewWatcher(fetcher, time.Millisecond, nil)

	final := w.Run(context.Background(), uuid.New(), enum.OrderStatusDelivered)
	if final != enum.OrderStatusDelivered {
		t.Fatalf("final = %s, want DELIVERED", final)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetch calls = %d, want 0", fetcher.calls)
	}
}

func TestWatcher_FetchErrorKeepsLastKnown(t *testing.T) {
	fetcher := &scriptedFetcher{
		script: []string{
			enum.OrderStatusReady,
			"", // slot consumed by the error
			enum.OrderStatusDelivered,
		},
		errAt: map[int]error{1: errors.New("network blip")},
	}
	var changes []string
	w := NewWatcher(fetcher, time.Millisecond, func(oldStatus, newStatus string) {
		changes = append(changes, oldStatus+">"+newStatus)
	})

	final := w.Run(context.Background(), uuid.New(), enum.OrderStatusTaken)
	if final != enum.OrderStatusDelivered {
		t.Fatalf("final = %s, want DELIVERED", final)
	}
	// The failed tick neither changed state nor fired the callback.
	want := []string{"TAKEN>READY", "READY>DELIVERED"}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
}

func TestWatcher_ContextCancelReturnsLastKnown(t *testing.T) {
	fetcher := &scriptedFetcher{script: []string{enum.OrderStatusReady}}
	w := NewWatcher(fetcher, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan string, 1)
	go func() {
		done <- w.Run(ctx, uuid.New(), enum.OrderStatusTaken)
	}()

	// Let at least one poll land, then tear the view down.
	for {
		fetcher.mu.Lock()
		calls := fetcher.calls
		fetcher.mu.Unlock()
		if calls > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case final := <-done:
		if final != enum.OrderStatusReady {
			t.Fatalf("final = %s, want last-known READY", final)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}

func TestWatcher_UnchangedStatusDoesNotFireCallback(t *testing.T) {
	fetcher := &scriptedFetcher{script: []string{
		enum.OrderStatusTaken,
		enum.OrderStatusTaken,
		enum.OrderStatusDelivered,
	}}
	fired := 0
	w := NewWatcher(fetcher, time.Millisecond, func(_, _ string) { fired++ })

	w.Run(context.Background(), uuid.New(), enum.OrderStatusTaken)
	if fired != 1 {
		t.Errorf("callback fired %d times, want 1 (only the real change)", fired)
	}
}

func TestNewWatcher_DefaultsInterval(t *testing.T) {
	w := NewWatcher(FetcherFunc(func(context.Context, uuid.UUID) (string, error) {
		return enum.OrderStatusTaken, nil
	}), 0, nil)
	if w.interval != DefaultInterval {
		t.Errorf("interval = %s, want %s", w.interval, DefaultInterval)
	}
}
