package provider

import (
	"log"

	"github.com/robfig/cron/v3"
)

// Refresher periodically invalidates a DirProvider's cache on a cron
// schedule, bounding how stale a long-lived session can get even when the
// mtime check is defeated (network mounts, coarse clocks).
type Refresher struct {
	provider *DirProvider
	cron     *cron.Cron
}

// NewRefresher schedules cache invalidation with a standard cron spec or
// an @every duration (e.g. "@every 5m").
func NewRefresher(p *DirProvider, spec string) (*Refresher, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		p.Invalidate()
		log.Printf("provider: cache invalidated (schedule %q)", spec)
	})
	if err != nil {
		return nil, err
	}
	return &Refresher{provider: p, cron: c}, nil
}

// Start begins the schedule in its own goroutine.
func (r *Refresher) Start() { r.cron.Start() }

// Stop halts the schedule and waits for a running invalidation to finish.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
