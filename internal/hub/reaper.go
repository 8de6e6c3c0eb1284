package hub

import (
	"context"
	"time"
)

// Reaper periodically sweeps sessions older than the TTL out of the store.
// It is advisory cleanup only; in-round deadlines are client-reported.
type Reaper struct {
	hub      *Hub
	ttl      time.Duration
	interval time.Duration
}

func NewReaper(h *Hub, ttl, interval time.Duration) *Reaper {
	return &Reaper{hub: h, ttl: ttl, interval: interval}
}

// Run blocks until ctx is cancelled. Sweeps go through the hub inbox, so
// deletion takes the same serialization as every other session mutation.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			select {
			case r.hub.Inbox() <- Sweep{OlderThan: now.Add(-r.ttl)}:
			case <-ctx.Done():
				return
			}
		}
	}
}
