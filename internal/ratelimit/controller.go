// Package ratelimit implements the Rate-Limit Controller (C8): a thin
// mediator shared across Sync Service, Media Pipeline and Watcher that
// centralizes handling of FLOOD_WAIT signals from the Chat Gateway.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Berektassuly/tg-sync/internal/domain"
)

// Controller records, per scope, the earliest wall-clock time further calls
// may be issued. Global mutable state is limited to this barrier map,
// passed as an explicit collaborator rather than an ambient singleton.
type Controller struct {
	mu      sync.RWMutex
	barrier map[string]time.Time
}

func New() *Controller {
	return &Controller{barrier: make(map[string]time.Time)}
}

// Wait blocks the caller until scope's barrier (if any) has passed. Call
// this before issuing a gateway call in scope.
func (c *Controller) Wait(ctx context.Context, scope string) error {
	c.mu.RLock()
	until, ok := c.barrier[scope]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes a FloodWaitError for scope. Short waits (<60s) are slept
// through in place and the caller should retry the same step. Long waits
// set the scope's barrier and are returned unchanged so the caller's own
// scheduling layer (Sync Service yields the dialog; Media Worker releases
// its permit and re-queues) can act on them.
func (c *Controller) Handle(ctx context.Context, scope string, fw *domain.FloodWaitError) error {
	if fw.Short() {
		select {
		case <-time.After(time.Duration(fw.Seconds) * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	c.barrier[scope] = time.Now().Add(time.Duration(fw.Seconds) * time.Second)
	c.mu.Unlock()
	return fw
}

// RetryTransport retries op against a transient transport error with
// exponential backoff, short-circuiting on FLOOD_WAIT so the caller can
// hand it to Handle instead of burning through the backoff schedule.
func (c *Controller) RetryTransport(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if _, isFlood := domain.AsFloodWait(err); isFlood {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
