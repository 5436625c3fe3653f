// Package server initializes and runs the account service: it opens the
// identity store, wires the services, and runs the HTTP API, the gRPC health
// endpoint and the provisioning sweeper until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/photokeeper/internal/logging"
	"github.com/dmitrijs2005/photokeeper/internal/server/auth"
	"github.com/dmitrijs2005/photokeeper/internal/server/config"
	"github.com/dmitrijs2005/photokeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/photokeeper/internal/server/metrics"
	"github.com/dmitrijs2005/photokeeper/internal/server/oauth"
	"github.com/dmitrijs2005/photokeeper/internal/server/provisioning"
	"github.com/dmitrijs2005/photokeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/photokeeper/internal/server/services"
	"github.com/dmitrijs2005/photokeeper/internal/server/storage"

	gs "github.com/dmitrijs2005/photokeeper/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	repos      repomanager.RepositoryManager
	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
	sweeper    *provisioning.Sweeper
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	app := &App{config: c, logger: logger}

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	store, err := storage.NewS3Store(ctx, c)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	registry := metrics.NewRegistry()
	m := metrics.NewMetrics(registry)

	provisioner := provisioning.NewProvisioner(store, app.repos.Accounts(), logger, m, c.ProvisionAttempts)
	app.sweeper = provisioning.NewSweeper(provisioner, app.repos.Accounts(), logger, c.ProvisionSweepInterval, c.ProvisionSweepBatch)

	issuer := auth.NewIssuer(c.JWTSecret, c.SessionTTL, c.LinkTokenTTL)
	accounts := services.NewAccountService(app.repos, auth.NewBcryptHasher(c.BcryptCost), issuer, provisioner, logger, m,
		services.Options{FederatedAutoLink: c.FederatedAutoLink})

	opts := httpapi.Options{
		Gatherer:      registry,
		FrontendDir:   c.FrontendDir,
		CORSOrigins:   c.CORSOrigins,
		SecureCookies: strings.HasPrefix(c.GoogleRedirectURI, "https://"),
	}
	if c.GoogleEnabled() {
		opts.Provider = oauth.NewGoogleProvider(c.GoogleClientID, c.GoogleClientSecret, c.GoogleRedirectURI)
	} else {
		logger.Warn(ctx, "Google client is not configured, federated login disabled")
	}

	app.httpServer = httpapi.NewServer(c.HTTPAddr, accounts, issuer, app.repos, m, logger, opts)
	app.grpcServer = gs.NewGRPCServer(c.GRPCAddr, logger, app.repos)

	return app, nil
}

// initStore opens PostgreSQL and migrates it, or falls back to memory when no
// DSN is configured.
func (app *App) initStore(ctx context.Context) error {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "DATABASE_DSN is empty, using the in-memory store")
		app.repos = repomanager.NewInMemoryRepositoryManager()
		return nil
	}

	db, err := repomanager.Open(ctx, app.config.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.repos = repomanager.NewPostgresRepositoryManager(db)

	if err := app.repos.RunMigrations(ctx); err != nil {
		app.close()
		return fmt.Errorf("db migration error: %w", err)
	}
	return nil
}

func (app *App) close() {
	if app.db != nil {
		_ = app.db.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startServer runs a blocking server and stops the app when it fails.
func (app *App) startServer(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "http", app.httpServer.Run)
	}()
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "grpc", app.grpcServer.Run)
	}()
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
}
