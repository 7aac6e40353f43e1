package source

import (
	"context"
	"time"
)

// progressTicker calls a function periodically until its context ends
type progressTicker struct {
	ctx      context.Context
	callback func()
	interval time.Duration
}

func newProgressTicker(ctx context.Context, interval time.Duration, callback func()) *progressTicker {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &progressTicker{
		ctx:      ctx,
		callback: callback,
		interval: interval,
	}
}

// Run blocks until the context is cancelled
func (p *progressTicker) Run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.callback()
		}
	}
}
