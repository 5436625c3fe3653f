package repomanager

import (
	"context"

	"github.com/dmitrijs2005/photokeeper/internal/server/repositories/accounts"
)

// RepositoryManager vends repositories and runs schema migrations.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Accounts() accounts.Repository
	// WithTx runs fn against repositories bound to a single transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
