// Package provisioning creates the storage namespace of new accounts and
// keeps retrying, in the background, the ones that failed.
package provisioning

import (
	"context"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/logging"
	"github.com/dmitrijs2005/photokeeper/internal/server/metrics"
	"github.com/dmitrijs2005/photokeeper/internal/server/models"
	"github.com/dmitrijs2005/photokeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/photokeeper/internal/server/storage"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const defaultBackoffBase = 200 * time.Millisecond

type Provisioner struct {
	store       storage.ObjectStore
	accounts    accounts.Repository
	logger      logging.Logger
	metrics     *metrics.Metrics
	attempts    uint64
	backoffBase time.Duration
	now         func() time.Time
}

func NewProvisioner(store storage.ObjectStore, repo accounts.Repository, l logging.Logger, m *metrics.Metrics, attempts uint64) *Provisioner {
	if attempts == 0 {
		attempts = 1
	}
	return &Provisioner{
		store:       store,
		accounts:    repo,
		logger:      l.With("module", "provisioning"),
		metrics:     m,
		attempts:    attempts,
		backoffBase: defaultBackoffBase,
		now:         time.Now,
	}
}

// Provision writes the namespace marker, retrying with exponential backoff.
func (p *Provisioner) Provision(ctx context.Context, namespace string) error {
	b := retry.WithMaxRetries(p.attempts-1, retry.NewExponential(p.backoffBase))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := p.store.CreateEmptyMarker(ctx, namespace); err != nil {
			p.logger.Debug(ctx, "namespace marker write failed", "namespace", namespace, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	p.metrics.Provisioned(err == nil)
	if err != nil {
		return oops.Code("STORAGE_ERROR").With("namespace", namespace).Wrap(err)
	}
	return nil
}

// ProvisionAccount provisions acc's namespace and records the completion on
// the account. A failure leaves the account unprovisioned for the sweeper.
func (p *Provisioner) ProvisionAccount(ctx context.Context, acc *models.Account) error {
	if err := p.Provision(ctx, acc.StorageNamespace); err != nil {
		p.logger.Warn(ctx, "namespace provisioning failed", "account_id", acc.ID, "error", err)
		return err
	}

	now := p.now()
	if err := p.accounts.Update(ctx, acc.ID, accounts.Fields{NamespaceProvisionedAt: &now}); err != nil {
		p.logger.Warn(ctx, "namespace provisioned but not recorded", "account_id", acc.ID, "error", err)
		return err
	}
	acc.NamespaceProvisionedAt = &now

	p.logger.Info(ctx, "namespace provisioned", "account_id", acc.ID, "namespace", acc.StorageNamespace)
	return nil
}
