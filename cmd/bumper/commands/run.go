package commands

import (
	"context"
	"errors"
	"log/slog"

	"forumbump/internal/bumper"
	"forumbump/internal/components/chrono"
	"forumbump/internal/components/telemetry"
	"forumbump/internal/config"
	"forumbump/internal/dashboard"
	"forumbump/pkg/serviceutil"
	"forumbump/pkg/textutil"

	"github.com/spf13/cobra"
)

var (
	runCreds      credentialFlags
	runConfigPath string
	runServer     bool
)

func init() {
	runCreds.register(runCmd)
	runCmd.Flags().StringVar(&runConfigPath, "config", "config.json", "Path to the bump schedule.")
	runCmd.Flags().BoolVar(&runServer, "server", false, "Serve the dashboard next to the bumper.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [-u <username> -p <password> | -c <cookie>] [--config config.json] [--server]",
	Short: "Logs in and bumps every configured thread forever.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		source := config.NewFileSource(runConfigPath)
		cfg, err := config.Load(telemetry.NewScopedAPI("config", telemetry.NewSlogAPI(nil)), source)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		slog.Info("loaded config", "config", cfg.String())

		stats := bumper.NewStats(chrono.NewStandardTime())
		e := newEnv(ctx, envOptions{recorder: stats, captcha: cfg.Captcha})
		defer e.Close()
		e.login(ctx, runCreds.credentials())

		store := config.NewStore(cfg)
		scheduler := bumper.NewScheduler(e.session, store, stats, chrono.NewStandardSleep(), e.tel)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		dashboardDone := make(chan error, 1)
		if runServer {
			go func() {
				dashboardDone <- dashboard.Start(ctx, dashboard.StartOpts{
					Addr:        cfg.ListenAddr(),
					AccessToken: e.service.Dashboard.AccessToken,
					Store:       store,
					Stats:       stats,
					Source:      source,
					User:        e.session,
					Tel:         e.tel,
				})
			}()
		}

		err = scheduler.Run(ctx)
		if errors.Is(err, context.Canceled) {
			slog.Info("shutting down")
			cancel()
			if runServer {
				<-dashboardDone
			}
			return
		}
		if last, ok := e.session.LastExchange(); ok {
			slog.Error(
				"last forum response",
				"method", last.Method,
				"url", last.Url,
				"status", last.Status,
				"body", textutil.Preview(last.Body, 200),
			)
		}
		serviceutil.Fatal("bumper stopped", err)
	},
}
