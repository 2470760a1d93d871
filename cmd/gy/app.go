package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/groupyard/internal/campaign"
	"github.com/zulandar/groupyard/internal/config"
	"github.com/zulandar/groupyard/internal/db"
	"github.com/zulandar/groupyard/internal/delivery"
	"github.com/zulandar/groupyard/internal/join"
	"github.com/zulandar/groupyard/internal/logging"
	"github.com/zulandar/groupyard/internal/notify"
	"github.com/zulandar/groupyard/internal/permission"
	"github.com/zulandar/groupyard/internal/platform"
	"github.com/zulandar/groupyard/internal/session"
	"github.com/zulandar/groupyard/internal/store"
	"github.com/zulandar/groupyard/internal/verify"
	"gorm.io/gorm"
)

// connectFromConfig loads the config and opens the database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	return cfg, gormDB, nil
}

// openStore connects and migrates, so commands work on a fresh database.
func openStore(configPath string) (*config.Config, *store.Store, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, nil, err
	}
	s, err := store.New(gormDB)
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	return logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: out})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// platformFactory selects how connections are built. Only the in-memory
// simulator ships with groupyard; a real driver implements
// platform.Connection and is registered here.
func platformFactory(simulate bool) (platform.Factory, error) {
	if simulate {
		return platform.NewMockFactory().Factory(), nil
	}
	return nil, fmt.Errorf("no platform driver is configured; run with --simulate to use the in-memory platform")
}

// services is every component wired from one config.
type services struct {
	cfg      *config.Config
	store    *store.Store
	log      zerolog.Logger
	events   *notify.Broadcaster
	notifier notify.Notifier
	sessions *session.Manager
	verifier *verify.Verifier
	joiner   *join.Orchestrator
	engine   *delivery.Engine
	runner   *campaign.Runner
	checker  *permission.Checker
}

type serviceOpts struct {
	ConfigPath string
	Simulate   bool
	LogOut     io.Writer
}

func buildServices(opts serviceOpts) (*services, error) {
	cfg, st, err := openStore(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	factory, err := platformFactory(opts.Simulate)
	if err != nil {
		return nil, err
	}
	sv := &services{cfg: cfg, store: st, events: notify.NewBroadcaster()}
	sv.log = newLogger(cfg, opts.LogOut)

	sv.notifier, err = buildNotifier(cfg, sv.log, sv.events)
	if err != nil {
		return nil, err
	}

	sv.sessions, err = session.NewManager(session.Opts{
		Factory:  factory,
		Dir:      cfg.Sessions.Dir,
		Recorder: st,
		Notifier: sv.notifier,
		Log:      sv.log,
	})
	if err != nil {
		return nil, err
	}

	restrict := true
	if cfg.Verify.RestrictRequiresApproval != nil {
		restrict = *cfg.Verify.RestrictRequiresApproval
	}
	sv.verifier, err = verify.New(verify.Opts{
		Store:      st,
		Policy:     verify.Policy{MemberThreshold: cfg.Verify.MemberThreshold, RestrictRequiresApproval: restrict},
		InviteHost: cfg.Sessions.InviteHost,
		Interval:   cfg.Verify.Interval,
		Log:        sv.log,
	})
	if err != nil {
		return nil, err
	}
	sv.joiner, err = join.New(join.Opts{Store: st, InviteHost: cfg.Sessions.InviteHost, Log: sv.log})
	if err != nil {
		return nil, err
	}

	sv.engine = delivery.New(delivery.Opts{Defaults: deliveryDefaults(cfg), Log: sv.log})
	sv.runner, err = campaign.NewRunner(campaign.Opts{
		Store:    st,
		Sessions: sv.sessions,
		Engine:   sv.engine,
		Notifier: sv.notifier,
		Log:      sv.log,
	})
	if err != nil {
		return nil, err
	}
	sv.checker = permission.New(cfg.Verify.Interval, sv.log)
	return sv, nil
}

func deliveryDefaults(cfg *config.Config) delivery.Config {
	d := cfg.Delivery
	return delivery.Config{
		DelayMin:      d.DelayMin,
		DelayMax:      d.DelayMax,
		BatchSize:     d.BatchSize,
		BatchDelay:    d.BatchDelay,
		PauseEvery:    d.PauseEvery,
		PauseDuration: d.PauseDuration,
	}
}

// buildNotifier fans events out to the log, the in-process broadcaster and
// whichever chat destinations are configured.
func buildNotifier(cfg *config.Config, log zerolog.Logger, events *notify.Broadcaster) (notify.Notifier, error) {
	multi := notify.Multi{notify.LogNotifier{Log: log}, events}
	if cfg.Notify.Slack.Token != "" {
		n, err := notify.NewSlackNotifier(notify.SlackOpts{Token: cfg.Notify.Slack.Token, Channel: cfg.Notify.Slack.Channel})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if cfg.Notify.Discord.Token != "" {
		n, err := notify.NewDiscordNotifier(notify.DiscordOpts{Token: cfg.Notify.Discord.Token, Channel: cfg.Notify.Discord.Channel})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	return multi, nil
}

// login brings key's session to ready, printing scan payloads as they
// arrive. It gives up after timeout.
func (sv *services) login(ctx context.Context, out io.Writer, key string, timeout time.Duration) error {
	qr, unsubscribe := sv.events.Subscribe(8)
	defer unsubscribe()

	sess, err := sv.sessions.GetOrCreate(ctx, key)
	if err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-qr:
				if !ok {
					return
				}
				if ev.Kind == notify.KindScanRequired && ev.AccountKey == sess.Key {
					fmt.Fprintf(out, "Scan this code to link account %s:\n%s\n", sess.Key, ev.QR)
				}
			case <-waitCtx.Done():
				return
			}
		}
	}()

	st, err := sv.sessions.Await(waitCtx, sess.Key, session.StateReady)
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("session %s: waiting for ready: %w", sess.Key, err)
	}
	if st != session.StateReady {
		return fmt.Errorf("session %s ended in state %s", sess.Key, st)
	}
	return nil
}

// restoreSessions reconnects every registered account that has stored
// credentials, so scheduled campaigns find a ready session.
func (sv *services) restoreSessions(ctx context.Context) int {
	accounts, err := sv.store.ListAccounts()
	if err != nil {
		sv.log.Warn().Err(err).Msg("list accounts")
		return 0
	}
	n := 0
	for _, a := range accounts {
		if !sv.sessions.HasStoredCredential(a.PhoneNumber) {
			continue
		}
		if _, err := sv.sessions.GetOrCreate(ctx, a.PhoneNumber); err != nil {
			sv.log.Warn().Err(err).Str("account", a.PhoneNumber).Msg("restore session")
			continue
		}
		n++
	}
	return n
}

func (sv *services) close(ctx context.Context) {
	if err := sv.runner.Shutdown(ctx); err != nil {
		sv.log.Warn().Err(err).Msg("campaign shutdown")
	}
	if err := sv.sessions.CloseAll(ctx); err != nil {
		sv.log.Warn().Err(err).Msg("session shutdown")
	}
	if err := db.Close(sv.store.DB()); err != nil {
		sv.log.Warn().Err(err).Msg("database close")
	}
}
