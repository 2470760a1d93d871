// Package delivery sends one message to many recipients in order, paced
// to look like a person sending by hand and steerable while it runs.
package delivery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/groupyard/internal/platform"
)

// DefaultPollInterval is how often a paused run checks for resume or stop.
const DefaultPollInterval = 5 * time.Second

// Status of one recipient.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Result is the recorded outcome for one recipient.
type Result struct {
	Recipient string    `json:"recipient"`
	ChatID    string    `json:"chat_id"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"timestamp"`
}

// Summary is returned when a run ends, by completion or stop.
type Summary struct {
	Total   int      `json:"total"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Details []Result `json:"details"`
	Stopped bool     `json:"stopped"`
}

// Job is one message and who it goes to.
type Job struct {
	Message     string
	Attachments []platform.Attachment
	Recipients  Recipients
	Config      Config
}

// Validate checks that the job has content and recipients.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Message) == "" && len(j.Attachments) == 0 {
		return fmt.Errorf("delivery: message or attachment is required")
	}
	if err := j.Recipients.Validate(); err != nil {
		return err
	}
	return j.Config.WithDefaults(DefaultConfig()).Validate()
}

// Observer is called after each recorded result with the running totals.
type Observer func(res Result, sent, failed int)

// SleepFunc waits d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Engine runs delivery jobs.
type Engine struct {
	sleep    SleepFunc
	intN     func(n int) int
	poll     time.Duration
	defaults Config
	log      zerolog.Logger
}

// Opts holds parameters for New. Zero values take production defaults.
type Opts struct {
	Sleep        SleepFunc
	IntN         func(n int) int // random source for inter-message delays
	PollInterval time.Duration
	Defaults     Config // fills zero job config fields; DefaultConfig when zero
	Log          zerolog.Logger
}

// New creates an Engine.
func New(opts Opts) *Engine {
	e := &Engine{
		sleep:    opts.Sleep,
		intN:     opts.IntN,
		poll:     opts.PollInterval,
		defaults: opts.Defaults.WithDefaults(DefaultConfig()),
		log:      opts.Log.With().Str("component", "delivery").Logger(),
	}
	if e.sleep == nil {
		e.sleep = sleep
	}
	if e.intN == nil {
		e.intN = rand.IntN
	}
	if e.poll <= 0 {
		e.poll = DefaultPollInterval
	}
	return e
}

// Defaults returns the config used to fill zero job fields.
func (e *Engine) Defaults() Config { return e.defaults }

// randomDelay picks a whole number of seconds in [min, max].
func (e *Engine) randomDelay(cfg Config) time.Duration {
	n := cfg.DelayMin
	if span := cfg.DelayMax - cfg.DelayMin; span > 0 {
		n += e.intN(span + 1)
	}
	return time.Duration(n) * time.Second
}

// Run sends job to every recipient in order. Recipients are split into
// batches of BatchSize with BatchDelay between batches. Within a batch a
// random delay follows each successful send, and every PauseEvery-th
// successful send triggers a PauseDuration cooldown, except after the
// final recipient. ctl is read before each send: a pause blocks, a stop
// (or ctx ending) ends the run keeping what was recorded. An invalid
// config sends nothing and reports the run as stopped.
func (e *Engine) Run(ctx context.Context, conn platform.Connection, job Job, ctl *Control, obs Observer) Summary {
	if ctl == nil {
		ctl = &Control{}
	}
	cfg := job.Config.WithDefaults(e.defaults)
	ids := job.Recipients.IDs
	if err := cfg.Validate(); err != nil {
		e.log.Error().Err(err).Int("total", len(ids)).Msg("delivery not started")
		return Summary{Total: len(ids), Details: []Result{}, Stopped: true}
	}
	batches := Batches(len(ids), cfg.BatchSize)
	sum := Summary{Total: len(ids), Details: make([]Result, 0, len(ids))}
	stopped := func() bool { return ctl.Stopped() || ctx.Err() != nil }

	e.log.Info().Int("total", sum.Total).Int("batches", len(batches)).
		Str("kind", string(job.Recipients.Kind)).Msg("delivery started")

	pos := 0
run:
	for b, size := range batches {
		batch := ids[pos : pos+size]
		pos += size
		e.log.Info().Int("batch", b+1).Int("of", len(batches)).Int("size", size).Msg("batch started")

		for i, id := range batch {
			for ctl.Paused() && !stopped() {
				_ = e.sleep(ctx, e.poll)
			}
			if stopped() {
				sum.Stopped = true
				break run
			}

			res := e.send(ctx, conn, job, id)
			sum.Details = append(sum.Details, res)
			if res.Status == StatusSent {
				sum.Sent++
			} else {
				sum.Failed++
			}
			if obs != nil {
				obs(res, sum.Sent, sum.Failed)
			}
			if res.Status != StatusSent {
				continue
			}

			last := b == len(batches)-1 && i == len(batch)-1
			if cfg.PauseEvery > 0 && sum.Sent%cfg.PauseEvery == 0 && !last {
				e.log.Info().Int("sent", sum.Sent).Dur("for", cfg.pauseDuration()).Msg("cooldown")
				_ = e.sleep(ctx, cfg.pauseDuration())
			}
			if i < len(batch)-1 {
				_ = e.sleep(ctx, e.randomDelay(cfg))
			}
		}

		if b < len(batches)-1 && !stopped() {
			e.log.Info().Dur("for", cfg.batchDelay()).Msg("waiting between batches")
			_ = e.sleep(ctx, cfg.batchDelay())
		}
	}

	e.log.Info().Int("sent", sum.Sent).Int("failed", sum.Failed).Int("total", sum.Total).
		Bool("stopped", sum.Stopped).Msg("delivery finished")
	return sum
}

// send delivers attachments then the text body to one recipient.
func (e *Engine) send(ctx context.Context, conn platform.Connection, job Job, id string) Result {
	chatID := job.Recipients.ChatID(id)
	res := Result{Recipient: id, ChatID: chatID, Status: StatusSent}
	err := func() error {
		for i := range job.Attachments {
			if err := conn.SendMessage(ctx, chatID, platform.Payload{Attachment: &job.Attachments[i]}); err != nil {
				return err
			}
		}
		if strings.TrimSpace(job.Message) != "" {
			return conn.SendMessage(ctx, chatID, platform.Payload{Text: job.Message})
		}
		return nil
	}()
	res.At = time.Now()
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		e.log.Warn().Str("chat", chatID).Err(err).Msg("send failed")
	} else {
		e.log.Debug().Str("chat", chatID).Msg("sent")
	}
	return res
}
