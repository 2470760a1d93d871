package main

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"github.com/zulandar/groupyard/internal/api"
	"github.com/zulandar/groupyard/internal/campaign"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		simulate   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and campaign scheduler",
		Long: `Starts the JSON API, the session registry and the scheduler that launches
campaigns when their scheduled time arrives. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, simulate)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides api.port)")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "use the in-memory platform instead of a real account")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, simulate bool) error {
	sv, err := buildServices(serviceOpts{ConfigPath: configPath, Simulate: simulate, LogOut: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		sv.close(shutdownCtx)
	}()

	if n := sv.restoreSessions(ctx); n > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Restoring %d stored sessions\n", n)
	}

	if paused, err := sv.store.PausedCampaigns(""); err == nil && len(paused) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d paused campaigns can be resumed (gy campaign resume <id>)\n", len(paused))
	}

	sched, err := campaign.NewScheduler(sv.runner, sv.cfg.Scheduler.Poll, sv.log)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if port <= 0 {
		port = sv.cfg.API.Port
	}
	if simulate {
		fmt.Fprintln(cmd.OutOrStdout(), "Simulation mode: messages and joins go to an in-memory platform.")
	}

	// Readiness for Type=notify units; a no-op outside systemd.
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		sv.log.Warn().Err(err).Msg("systemd notify")
	}

	return api.Start(ctx, api.StartOpts{
		Deps: api.Deps{
			Store:     sv.store,
			Sessions:  sv.sessions,
			Verifier:  sv.verifier,
			Joiner:    sv.joiner,
			JoinDelay: sv.cfg.Join.Delay,
			Runner:    sv.runner,
			Checker:   sv.checker,
			Events:    sv.events,
			Log:       sv.log,
		},
		Port: port,
		Out:  cmd.OutOrStdout(),
	})
}
