// Package dashboard serves the json api used to watch and edit a running bumper.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"forumbump/internal/bumper"
	"forumbump/internal/components/chrono"
	"forumbump/internal/components/telemetry"
	"forumbump/internal/config"
	"forumbump/internal/scrapers/forum"

	"github.com/gin-gonic/gin"
)

const (
	report_dashboard_serve  = "dashboard.serve"
	report_dashboard_save   = "dashboard.save"
	report_dashboard_update = "dashboard.update"
)

// UserSource returns the cached profile of the logged in user.
type UserSource interface {
	Profile() (forum.Profile, bool)
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	// Addr is host:port, it defaults to the address in the live configuration.
	Addr string
	// AccessToken is required as a bearer token on every request, an empty
	// token disables authentication.
	AccessToken string

	Store *config.Store
	Stats *bumper.Stats
	// Source persists configuration changes, optional.
	Source config.Source
	// User is optional.
	User UserSource
	Time chrono.TimeAPI
	Tel  telemetry.API
}

func (o *StartOpts) validate() error {
	if o.Store == nil {
		return fmt.Errorf("dashboard: store is required")
	}
	if o.Stats == nil {
		return fmt.Errorf("dashboard: stats are required")
	}
	if o.Tel == nil {
		return fmt.Errorf("dashboard: telemetry is required")
	}
	if o.Time == nil {
		o.Time = chrono.NewStandardTime()
	}
	if o.Addr == "" {
		o.Addr = o.Store.Snapshot().ListenAddr()
	}
	return nil
}

// NewRouter creates the gin router with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	err := opts.validate()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, newApi(opts))
	return router, nil
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if srv.Addr == "" {
		srv.Addr = opts.Store.Snapshot().ListenAddr()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	opts.Tel.ReportInfo(fmt.Sprintf("Dashboard running at http://%s", srv.Addr))
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		opts.Tel.ReportBroken(report_dashboard_serve, err)
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
