// Package join accepts group invitations one at a time and records each
// outcome on the target.
package join

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/groupyard/internal/models"
	"github.com/zulandar/groupyard/internal/platform"
	"github.com/zulandar/groupyard/internal/store"
)

// Outcome is the result of one join attempt.
type Outcome string

const (
	Joined           Outcome = "successful"
	Failed           Outcome = "failed"
	AlreadyProcessed Outcome = "already_processed"
)

// Result describes one join attempt.
type Result struct {
	Link     string  `json:"link"`
	Outcome  Outcome `json:"outcome"`
	GroupID  string  `json:"group_id,omitempty"`
	Error    string  `json:"error,omitempty"`
	Recorded bool    `json:"recorded"`
}

// TargetStore is the subset of store.Store the orchestrator writes through.
type TargetStore interface {
	GetTarget(link string) (*models.Target, error)
	InsertTargets(targets []models.Target) (int, error)
	MarkSuccessful(link, platformTargetID string) (bool, error)
	MarkFailed(link, errorMessage string) (bool, error)
}

// SleepFunc waits d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Orchestrator joins targets sequentially.
type Orchestrator struct {
	store   TargetStore
	matcher *platform.InviteMatcher
	sleep   SleepFunc
	log     zerolog.Logger
}

// Opts holds parameters for New.
type Opts struct {
	Store      TargetStore
	InviteHost string
	Sleep      SleepFunc // defaults to Sleep
	Log        zerolog.Logger
}

// New creates an Orchestrator.
func New(opts Opts) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("join: store is required")
	}
	m, err := platform.NewInviteMatcher(opts.InviteHost)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return &Orchestrator{
		store:   opts.Store,
		matcher: m,
		sleep:   sleep,
		log:     opts.Log.With().Str("component", "join").Logger(),
	}, nil
}

// Join attempts one target. A target that already reached a terminal
// status returns AlreadyProcessed without touching the connection. A link
// the store does not know yet is inserted first so its outcome can be
// recorded.
func (o *Orchestrator) Join(ctx context.Context, conn platform.Connection, target models.Target) Result {
	res := Result{Link: target.Link}

	existing, err := o.store.GetTarget(target.Link)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if _, err := o.store.InsertTargets([]models.Target{target}); err != nil {
			res.Outcome = Failed
			res.Error = err.Error()
			return res
		}
	case err != nil:
		res.Outcome = Failed
		res.Error = err.Error()
		return res
	case existing.Terminal():
		res.Outcome = AlreadyProcessed
		return res
	}

	code := o.matcher.Code(target.Link)
	if code == "" {
		return o.fail(res, "invalid invite link")
	}

	groupID, err := accept(ctx, conn, code)
	if err != nil {
		return o.fail(res, err.Error())
	}

	res.Outcome = Joined
	res.GroupID = groupID
	ok, err := o.store.MarkSuccessful(target.Link, groupID)
	if err != nil {
		o.log.Error().Err(err).Str("link", target.Link).Msg("record join")
	}
	res.Recorded = ok
	o.log.Info().Str("link", target.Link).Str("group", groupID).Msg("joined")
	return res
}

func (o *Orchestrator) fail(res Result, msg string) Result {
	res.Outcome = Failed
	res.Error = msg
	ok, err := o.store.MarkFailed(res.Link, msg)
	if err != nil {
		o.log.Error().Err(err).Str("link", res.Link).Msg("record join failure")
	}
	res.Recorded = ok
	o.log.Warn().Str("link", res.Link).Str("error", msg).Msg("join failed")
	return res
}

// accept calls AcceptInvite, turning a panic into an error so the outcome
// is still recorded.
func accept(ctx context.Context, conn platform.Connection, code string) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("accept invite panicked: %v", r)
		}
	}()
	return conn.AcceptInvite(ctx, code)
}

// JoinBatch joins targets strictly in order. After each successful join
// except the last it waits delay; failures move on immediately. It stops
// early when ctx ends.
func (o *Orchestrator) JoinBatch(ctx context.Context, conn platform.Connection, targets []models.Target, delay time.Duration) []Result {
	results := make([]Result, 0, len(targets))
	for i, t := range targets {
		if ctx.Err() != nil {
			break
		}
		res := o.Join(ctx, conn, t)
		results = append(results, res)
		if res.Outcome == Joined && i < len(targets)-1 && delay > 0 {
			if err := o.sleep(ctx, delay); err != nil {
				break
			}
		}
	}
	return results
}
