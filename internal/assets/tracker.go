package assets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"
)

// Tracker hands the download stage a per-fire signal that the matching
// upload reached a terminal state, replacing any fixed-delay rendezvous
// between the two stages. Fires are registered up front so awaiting an
// unknown fire fails fast instead of blocking forever.
type Tracker struct {
	mu      sync.Mutex
	results map[string]chan UploadResult
}

func NewTracker() *Tracker {
	return &Tracker{results: map[string]chan UploadResult{}}
}

// Expect registers a fire whose upload outcome will be delivered later.
func (t *Tracker) Expect(fireID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.results[fireID]; !ok {
		t.results[fireID] = make(chan UploadResult, 1)
	}
}

// Known reports whether the fire was registered with Expect or Resolve.
func (t *Tracker) Known(fireID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.results[fireID]
	return ok
}

// Resolve delivers the terminal upload outcome for a fire. Resolving a fire
// nobody expected registers it on the fly; resolving twice keeps the first
// outcome.
func (t *Tracker) Resolve(result UploadResult) {
	t.mu.Lock()
	ch, ok := t.results[result.FireID]
	if !ok {
		ch = make(chan UploadResult, 1)
		t.results[result.FireID] = ch
	}
	t.mu.Unlock()

	select {
	case ch <- result:
	default: // already resolved
	}
}

// Await blocks until the fire's upload reaches a terminal state or the
// context expires. Awaiting the same fire again returns the same outcome.
func (t *Tracker) Await(ctx context.Context, fireID string) (UploadResult, error) {
	t.mu.Lock()
	ch, ok := t.results[fireID]
	t.mu.Unlock()
	if !ok {
		return UploadResult{}, fmt.Errorf("no upload tracked for fire %s", fireID)
	}

	select {
	case result := <-ch:
		// put it back so later awaits see the same outcome
		select {
		case ch <- result:
		default:
		}
		return result, nil
	case <-ctx.Done():
		return UploadResult{}, ctx.Err()
	}
}

// backoff widens the wait between polls up to a cap, with normal jitter on
// top so concurrent pollers spread out.
type backoff struct {
	norm jitterbug.Norm
	next time.Duration
	cap  time.Duration
}

func (b *backoff) Jitter(time.Duration) time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.cap {
		b.next = b.cap
	}
	return b.norm.Jitter(d)
}
