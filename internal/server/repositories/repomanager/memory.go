package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/photokeeper/internal/server/repositories/accounts"
)

// InMemoryRepositoryManager serves repositories held in process memory.
// Transactions are serialized with a single mutex.
type InMemoryRepositoryManager struct {
	txMu     sync.Mutex
	accounts *accounts.InMemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{accounts: accounts.NewInMemoryRepository()}
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Accounts() accounts.Repository { return m.accounts }

func (m *InMemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m.accounts)
}

func (m *InMemoryRepositoryManager) Ping(context.Context) error { return nil }
