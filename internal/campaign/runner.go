// Package campaign runs stored campaigns through the delivery engine and
// starts scheduled ones when they come due.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/groupyard/internal/delivery"
	"github.com/zulandar/groupyard/internal/models"
	"github.com/zulandar/groupyard/internal/notify"
	"github.com/zulandar/groupyard/internal/platform"
)

var (
	// ErrSessionNotReady is returned when the campaign's account has no
	// ready connection.
	ErrSessionNotReady = errors.New("campaign: session not ready")
	// ErrAlreadyRunning is returned when starting a campaign that is running.
	ErrAlreadyRunning = errors.New("campaign: already running")
	// ErrNotRunning is returned when steering a campaign that is not running.
	ErrNotRunning = errors.New("campaign: not running")
	// ErrFinal is returned when starting a completed or failed campaign.
	ErrFinal = errors.New("campaign: already completed or failed")
	// ErrStopping is returned when resuming a run that was stopped but has
	// not reached its next checkpoint yet.
	ErrStopping = errors.New("campaign: stop in progress")
)

// Store is the subset of store.Store the runner uses.
type Store interface {
	GetCampaign(id uint) (*models.Campaign, error)
	UpdateCampaignStatus(id uint, status, results string) error
	SaveCampaignResults(id uint, results string) error
	DueCampaigns(now time.Time) ([]models.Campaign, error)
}

// Sessions hands out ready connections by account key.
type Sessions interface {
	ReadyConnection(key string) (platform.Connection, bool)
}

type run struct {
	ctl    *delivery.Control
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner owns the registry of in-progress campaign runs.
type Runner struct {
	store    Store
	sessions Sessions
	engine   *delivery.Engine
	notifier notify.Notifier
	log      zerolog.Logger

	mu   sync.Mutex
	runs map[uint]*run
}

// Opts holds parameters for NewRunner.
type Opts struct {
	Store    Store
	Sessions Sessions
	Engine   *delivery.Engine
	Notifier notify.Notifier
	Log      zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts Opts) (*Runner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("campaign: runner: store is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("campaign: runner: sessions are required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("campaign: runner: engine is required")
	}
	return &Runner{
		store:    opts.Store,
		sessions: opts.Sessions,
		engine:   opts.Engine,
		notifier: opts.Notifier,
		log:      opts.Log.With().Str("component", "campaign").Logger(),
		runs:     make(map[uint]*run),
	}, nil
}

// Start launches campaign id in the background. Recipients that already
// have a recorded result from an earlier run are skipped, so a stopped
// campaign continues where it left off.
func (r *Runner) Start(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; ok {
		return fmt.Errorf("campaign %d: %w", id, ErrAlreadyRunning)
	}

	c, err := r.store.GetCampaign(id)
	if err != nil {
		return err
	}
	if c.Final() {
		return fmt.Errorf("campaign %d is %s: %w", id, c.Status, ErrFinal)
	}
	job, err := Job(c)
	if err != nil {
		if uerr := r.store.UpdateCampaignStatus(id, models.CampaignFailed, ""); uerr != nil {
			r.log.Error().Err(uerr).Uint("campaign", id).Msg("mark failed")
		}
		r.notify(ctx, c, notify.KindCampaignFailed, err.Error())
		return err
	}
	prev, err := Results(c)
	if err != nil {
		return err
	}
	conn, ok := r.sessions.ReadyConnection(c.AccountKey)
	if !ok {
		return fmt.Errorf("campaign %d: account %s: %w", id, c.AccountKey, ErrSessionNotReady)
	}

	total := len(job.Recipients.IDs)
	job.Recipients.IDs = remaining(job.Recipients.IDs, prev.Details)
	if err := r.store.UpdateCampaignStatus(id, models.CampaignRunning, ""); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rn := &run{ctl: &delivery.Control{}, cancel: cancel, done: make(chan struct{})}
	r.runs[id] = rn
	go r.execute(runCtx, c, conn, job, rn, prev, total)

	r.log.Info().Uint("campaign", id).Int("remaining", len(job.Recipients.IDs)).Int("total", total).Msg("campaign started")
	return nil
}

// remaining drops recipients that already have a recorded result.
func remaining(ids []string, done []delivery.Result) []string {
	if len(done) == 0 {
		return ids
	}
	seen := make(map[string]bool, len(done))
	for _, d := range done {
		seen[d.Recipient] = true
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func (r *Runner) execute(ctx context.Context, c *models.Campaign, conn platform.Connection, job delivery.Job, rn *run, prev delivery.Summary, total int) {
	defer func() {
		r.mu.Lock()
		delete(r.runs, c.ID)
		r.mu.Unlock()
		close(rn.done)
	}()

	merged := delivery.Summary{Total: total, Sent: prev.Sent, Failed: prev.Failed, Details: prev.Details}
	obs := func(res delivery.Result, sent, failed int) {
		merged.Details = append(merged.Details, res)
		merged.Sent = prev.Sent + sent
		merged.Failed = prev.Failed + failed
		if err := r.store.SaveCampaignResults(c.ID, encodeResults(merged)); err != nil {
			r.log.Error().Err(err).Uint("campaign", c.ID).Msg("save progress")
		}
	}

	sum := r.engine.Run(ctx, conn, job, rn.ctl, obs)
	merged.Stopped = sum.Stopped

	status := models.CampaignCompleted
	if sum.Stopped {
		status = models.CampaignPaused
	}
	if err := r.store.UpdateCampaignStatus(c.ID, status, encodeResults(merged)); err != nil {
		r.log.Error().Err(err).Uint("campaign", c.ID).Msg("save final status")
	}
	r.log.Info().Uint("campaign", c.ID).Str("status", status).Int("sent", merged.Sent).
		Int("failed", merged.Failed).Msg("campaign finished")
	if status == models.CampaignCompleted {
		r.notify(context.Background(), c, notify.KindCampaignCompleted,
			fmt.Sprintf("campaign %d: %d sent, %d failed of %d", c.ID, merged.Sent, merged.Failed, merged.Total))
	}
}

func (r *Runner) notify(ctx context.Context, c *models.Campaign, kind notify.Kind, detail string) {
	if r.notifier == nil {
		return
	}
	err := r.notifier.Notify(ctx, notify.Event{Kind: kind, AccountKey: c.AccountKey, Detail: detail, At: time.Now()})
	if err != nil {
		r.log.Warn().Err(err).Uint("campaign", c.ID).Msg("notify failed")
	}
}

func (r *Runner) get(id uint) (*run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d: %w", id, ErrNotRunning)
	}
	return rn, nil
}

// Pause blocks the run before its next send and records the paused status.
func (r *Runner) Pause(id uint) error {
	rn, err := r.get(id)
	if err != nil {
		return err
	}
	rn.ctl.Pause()
	return r.store.UpdateCampaignStatus(id, models.CampaignPaused, "")
}

// Resume continues a paused run. A campaign that was stopped or
// interrupted (paused with no live run) is started again. A run that is
// still winding down after Stop yields ErrStopping.
func (r *Runner) Resume(ctx context.Context, id uint) error {
	rn, err := r.get(id)
	if errors.Is(err, ErrNotRunning) {
		return r.Start(ctx, id)
	}
	if err != nil {
		return err
	}
	if rn.ctl.Stopped() {
		return fmt.Errorf("campaign %d: %w", id, ErrStopping)
	}
	rn.ctl.Resume()
	return r.store.UpdateCampaignStatus(id, models.CampaignRunning, "")
}

// Stop ends the run at its next checkpoint. The campaign is left paused
// with its results so it can be resumed later.
func (r *Runner) Stop(id uint) error {
	rn, err := r.get(id)
	if err != nil {
		return err
	}
	rn.ctl.Stop()
	return nil
}

// Wait blocks until campaign id is no longer running or ctx ends.
func (r *Runner) Wait(ctx context.Context, id uint) error {
	rn, err := r.get(id)
	if err != nil {
		return nil
	}
	select {
	case <-rn.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running returns the IDs of in-progress campaigns.
func (r *Runner) Running() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint, 0, len(r.runs))
	for id := range r.runs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Shutdown stops every run and waits for them to persist their state.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*run, 0, len(r.runs))
	for _, rn := range r.runs {
		rn.ctl.Stop()
		rn.cancel()
		all = append(all, rn)
	}
	r.mu.Unlock()
	for _, rn := range all {
		select {
		case <-rn.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
