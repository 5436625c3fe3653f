// Package httpapi exposes the account service over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/logging"
	"github.com/dmitrijs2005/photokeeper/internal/server/auth"
	"github.com/dmitrijs2005/photokeeper/internal/server/metrics"
	"github.com/dmitrijs2005/photokeeper/internal/server/models"
	"github.com/dmitrijs2005/photokeeper/internal/server/oauth"
	"github.com/dmitrijs2005/photokeeper/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Accounts is the part of services.AccountService used by the handlers.
type Accounts interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.Session, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Account(ctx context.Context, accountID string) (*models.Account, error)
	ResolveFederated(ctx context.Context, id models.FederatedIdentity) (*models.Account, error)
	LinkFederated(ctx context.Context, accountID string, id models.FederatedIdentity) (*models.Account, error)
	PrepareLink(ctx context.Context, email, password string) (string, error)
	IssueSession(acc *models.Account) (*services.Session, error)
}

// Pinger reports store readiness for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the optional parts of the HTTP surface.
type Options struct {
	// Provider enables the federated login routes. Nil disables them.
	Provider oauth.Provider
	// Gatherer is exposed on /metrics when set.
	Gatherer prometheus.Gatherer
	// FrontendDir, when set, is served as a single page application.
	FrontendDir string
	// CORSOrigins lists the origins allowed to call the API from a browser.
	CORSOrigins []string
	// SecureCookies marks the OAuth cookies Secure.
	SecureCookies bool
}

type Server struct {
	address  string
	accounts Accounts
	issuer   *auth.Issuer
	health   Pinger
	metrics  *metrics.Metrics
	logger   logging.Logger
	opts     Options
	engine   *gin.Engine
}

func NewServer(address string, a Accounts, issuer *auth.Issuer, health Pinger, m *metrics.Metrics, l logging.Logger, opts Options) *Server {
	s := &Server{
		address:  address,
		accounts: a,
		issuer:   issuer,
		health:   health,
		metrics:  m,
		logger:   l.With("module", "http_server"),
		opts:     opts,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe(), s.cors())

	r.GET("/healthz", s.healthz)
	if s.opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/auth")
	api.POST("/register", s.register)
	api.POST("/login", s.login)

	authed := api.Group("")
	authed.Use(s.requireSession())
	authed.GET("/me", s.me)
	authed.GET("/oauth/status", s.oauthStatus)

	api.GET("/oauth/start", s.oauthStart)
	api.GET("/oauth/callback", s.oauthCallback)
	api.POST("/oauth/link", s.oauthLink)

	if s.opts.FrontendDir != "" {
		r.NoRoute(s.frontend)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		if errPing := s.health.Ping(c.Request.Context()); errPing != nil {
			s.logger.Warn(c.Request.Context(), "health check failed", "error", errPing)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
