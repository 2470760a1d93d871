// Package api exposes groupyard over HTTP as JSON. It is the boundary a
// front end or automation talks to; it holds no state of its own beyond
// the background join batches it launches.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/groupyard/internal/campaign"
	"github.com/zulandar/groupyard/internal/join"
	"github.com/zulandar/groupyard/internal/notify"
	"github.com/zulandar/groupyard/internal/permission"
	"github.com/zulandar/groupyard/internal/session"
	"github.com/zulandar/groupyard/internal/store"
	"github.com/zulandar/groupyard/internal/verify"
)

// Deps are the components the API drives.
type Deps struct {
	Store     *store.Store
	Sessions  *session.Manager
	Verifier  *verify.Verifier
	Joiner    *join.Orchestrator
	JoinDelay time.Duration
	Runner    *campaign.Runner
	Checker   *permission.Checker
	Events    *notify.Broadcaster // optional, enables /api/events
	Log       zerolog.Logger
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Deps Deps
	Port int
	Out  io.Writer
}

type server struct {
	Deps
	ctx context.Context // outlives requests; cancelled on shutdown

	mu      sync.Mutex
	joining map[string]bool // accounts with a join batch in progress
}

// NewRouter builds the gin engine. Background work started by handlers
// is bound to ctx.
func NewRouter(ctx context.Context, deps Deps) (*gin.Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("api: store is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("api: session manager is required")
	}
	s := &server{Deps: deps, ctx: ctx, joining: make(map[string]bool)}
	s.Log = deps.Log.With().Str("component", "api").Logger()

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())
	registerRoutes(router, s)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 3000
	}
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(ctx, opts.Deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (s *server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Log.Debug().Str("method", c.Request.Method).Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).Dur("took", time.Since(start)).Msg("request")
	}
}
