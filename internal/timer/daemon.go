// Package timer runs the session timer: a periodic sweep that moves running
// sessions close to their deadline into SESSION_ENDING.
package timer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is implemented by orders.Service.
type Sweeper interface {
	SweepExpiring(ctx context.Context, lookahead time.Duration) (int, error)
}

type Daemon struct {
	Sweeper   Sweeper
	Interval  time.Duration
	Lookahead time.Duration
	Log       zerolog.Logger
}

// Run sweeps once right away and then on every tick until ctx is done. A
// failing or panicking sweep is logged and the next tick runs as usual.
func (d *Daemon) Run(ctx context.Context) {
	if d.Interval <= 0 {
		d.Interval = time.Minute
	}
	if d.Lookahead <= 0 {
		d.Lookahead = 30 * time.Minute
	}
	d.Log.Info().
		Dur("interval", d.Interval).
		Dur("lookahead", d.Lookahead).
		Msg("session timer started")

	t := time.NewTicker(d.Interval)
	defer t.Stop()
	for {
		d.tick(ctx)
		select {
		case <-ctx.Done():
			d.Log.Info().Msg("session timer stopped")
			return
		case <-t.C:
		}
	}
}

func (d *Daemon) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	n, err := d.sweep(ctx)
	if err != nil {
		d.Log.Error().Err(err).Int("moved", n).Msg("session sweep failed")
		return
	}
	if n > 0 {
		d.Log.Info().Int("moved", n).Dur("took", time.Since(start)).Msg("sessions moved to ending")
	}
}

func (d *Daemon) sweep(ctx context.Context) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
		}
	}()
	return d.Sweeper.SweepExpiring(ctx, d.Lookahead)
}
