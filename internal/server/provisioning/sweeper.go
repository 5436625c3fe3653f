package provisioning

import (
	"context"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/logging"
	"github.com/dmitrijs2005/photokeeper/internal/server/repositories/accounts"
)

// Sweeper periodically provisions accounts whose namespace marker was never
// written, so a storage outage at signup is repaired once storage is back.
type Sweeper struct {
	provisioner *Provisioner
	accounts    accounts.Repository
	logger      logging.Logger
	interval    time.Duration
	batch       int
	now         func() time.Time
}

func NewSweeper(p *Provisioner, repo accounts.Repository, l logging.Logger, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		provisioner: p,
		accounts:    repo,
		logger:      l.With("module", "provisioning_sweeper"),
		interval:    interval,
		batch:       batch,
		now:         time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "Starting provisioning sweeper", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping provisioning sweeper...")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error(ctx, "provisioning sweep failed", "error", err)
			}
		}
	}
}

// Sweep provisions one batch and returns how many accounts succeeded.
// Accounts younger than one interval are skipped; their signup request may
// still be provisioning them inline.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	pending, err := s.accounts.ListUnprovisioned(ctx, s.now().Add(-s.interval), s.batch)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, acc := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if err := s.provisioner.ProvisionAccount(ctx, acc); err == nil {
			done++
		}
	}

	if len(pending) > 0 {
		s.logger.Info(ctx, "provisioning sweep finished", "pending", len(pending), "provisioned", done)
	}
	return done, nil
}
