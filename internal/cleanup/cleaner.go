package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired entries and reports how many it removed
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweeperFunc adapts a function to Sweeper
type SweeperFunc func(ctx context.Context) (int, error)

// Sweep implements Sweeper
func (f SweeperFunc) Sweep(ctx context.Context) (int, error) { return f(ctx) }

// Cleaner handles periodic cleanup of expired guests and guest sessions
type Cleaner struct {
	sweepers map[string]Sweeper
	interval time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		sweepers: make(map[string]Sweeper),
		interval: interval,
	}
}

// Register adds a named sweeper. It must be called before Start.
func (c *Cleaner) Register(name string, s Sweeper) *Cleaner {
	c.sweepers[name] = s
	return c
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "sweepers", len(c.sweepers))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every sweeper once and returns the removals per sweeper.
// A failing sweeper is logged and does not stop the others.
func (c *Cleaner) RunOnce(ctx context.Context) map[string]int {
	slog.Debug("running cleanup cycle")

	removed := make(map[string]int, len(c.sweepers))
	for name, s := range c.sweepers {
		n, err := s.Sweep(ctx)
		if err != nil {
			slog.Error("cleanup sweep failed", "sweeper", name, "error", err)
			continue
		}
		removed[name] = n
		if n > 0 {
			slog.Info("expired entries removed", "sweeper", name, "count", n)
		}
	}
	return removed
}
