// Package verify classifies invitation links without joining them.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/groupyard/internal/models"
	"github.com/zulandar/groupyard/internal/platform"
	"github.com/zulandar/groupyard/internal/store"
	"golang.org/x/time/rate"
)

// Classification is the outcome of checking one link.
type Classification string

const (
	Working          Classification = "working"
	RequiresApproval Classification = "requires_approval"
	Expired          Classification = "expired"
	Invalid          Classification = "invalid"
	Error            Classification = "error"
	Skipped          Classification = "skipped" // already verified or terminal
)

// Policy decides when a reachable group needs admin approval to join.
type Policy struct {
	MemberThreshold          int
	RestrictRequiresApproval bool
}

// DefaultPolicy treats groups of 100+ members or with restricted settings
// as requiring approval.
func DefaultPolicy() Policy {
	return Policy{MemberThreshold: 100, RestrictRequiresApproval: true}
}

// Classify applies the policy to invite info.
func (p Policy) Classify(info platform.InviteInfo) Classification {
	if p.MemberThreshold > 0 && info.Size >= p.MemberThreshold {
		return RequiresApproval
	}
	if p.RestrictRequiresApproval && info.Restrict {
		return RequiresApproval
	}
	return Working
}

// ClassifyError maps a platform error onto expired, invalid or error.
func ClassifyError(err error) Classification {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "revoked"), strings.Contains(msg, "expired"):
		return Expired
	case strings.Contains(msg, "invalid"):
		return Invalid
	default:
		return Error
	}
}

// Result is the outcome for one link.
type Result struct {
	Link           string         `json:"link"`
	Code           string         `json:"code,omitempty"`
	Classification Classification `json:"classification"`
	Name           string         `json:"name,omitempty"`
	Size           int            `json:"size,omitempty"`
	Restrict       bool           `json:"restrict,omitempty"`
	Error          string         `json:"error,omitempty"`
	Persisted      bool           `json:"persisted"`
}

// TargetStore is the subset of store.Store the verifier writes through.
type TargetStore interface {
	GetTarget(link string) (*models.Target, error)
	MarkVerified(link string, requiresApproval bool, name string) (bool, error)
	MarkFailed(link, errorMessage string) (bool, error)
}

// Verifier checks links against a Connection and records the outcome.
type Verifier struct {
	store   TargetStore
	policy  Policy
	matcher *platform.InviteMatcher
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Opts holds parameters for New.
type Opts struct {
	Store      TargetStore
	Policy     Policy
	InviteHost string
	Interval   time.Duration // minimum spacing between checks in a batch; 0 disables pacing
	Log        zerolog.Logger
}

// New creates a Verifier.
func New(opts Opts) (*Verifier, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("verify: store is required")
	}
	m, err := platform.NewInviteMatcher(opts.InviteHost)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &Verifier{
		store:   opts.Store,
		policy:  opts.Policy,
		matcher: m,
		limiter: rate.NewLimiter(limit, 1),
		log:     opts.Log.With().Str("component", "verify").Logger(),
	}, nil
}

// skip reports whether target was already verified or finished. Links the
// store does not know are still checked, just not persisted.
func (v *Verifier) skip(link string) (known bool, done bool, err error) {
	t, err := v.store.GetTarget(link)
	if errors.Is(err, store.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, t.Verified || t.Terminal(), nil
}

// Verify classifies one link and records the result: working and
// requires_approval mark the target verified; expired and invalid mark it
// failed; error changes nothing.
func (v *Verifier) Verify(ctx context.Context, conn platform.Connection, target models.Target) Result {
	res := Result{Link: target.Link}
	known, done, err := v.skip(target.Link)
	if err != nil {
		res.Classification = Error
		res.Error = err.Error()
		return res
	}
	if done {
		res.Classification = Skipped
		return res
	}
	v.check(ctx, conn, &res)
	if known {
		v.persist(&res)
	}
	v.log.Debug().Str("link", res.Link).Str("result", string(res.Classification)).Msg("link checked")
	return res
}

func (v *Verifier) check(ctx context.Context, conn platform.Connection, res *Result) {
	res.Code = v.matcher.Code(res.Link)
	if res.Code == "" {
		res.Classification = Invalid
		res.Error = "invalid invite link"
		return
	}
	info, err := conn.InviteInfo(ctx, res.Code)
	if err != nil {
		res.Classification = ClassifyError(err)
		res.Error = err.Error()
		return
	}
	res.Name = info.Subject
	res.Size = info.Size
	res.Restrict = info.Restrict
	res.Classification = v.policy.Classify(info)
}

func (v *Verifier) persist(res *Result) {
	var (
		ok  bool
		err error
	)
	switch res.Classification {
	case Working, RequiresApproval:
		ok, err = v.store.MarkVerified(res.Link, res.Classification == RequiresApproval, res.Name)
	case Expired, Invalid:
		ok, err = v.store.MarkFailed(res.Link, res.Error)
	default:
		return
	}
	if err != nil {
		v.log.Error().Err(err).Str("link", res.Link).Msg("record verification")
		return
	}
	res.Persisted = ok
}

// Report groups batch results by classification.
type Report struct {
	Total   int                         `json:"total"`
	Counts  map[Classification]int      `json:"counts"`
	Results []Result                    `json:"results"`
	ByClass map[Classification][]string `json:"links"`
}

func newReport() *Report {
	return &Report{
		Counts:  make(map[Classification]int),
		ByClass: make(map[Classification][]string),
	}
}

func (r *Report) add(res Result) {
	r.Total++
	r.Counts[res.Classification]++
	r.ByClass[res.Classification] = append(r.ByClass[res.Classification], res.Link)
	r.Results = append(r.Results, res)
}

// VerifyBatch checks targets one at a time, paced by the verifier's
// interval. Skipped targets do not wait. It stops early when ctx ends.
func (v *Verifier) VerifyBatch(ctx context.Context, conn platform.Connection, targets []models.Target) Report {
	r := newReport()
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		if _, done, err := v.skip(t.Link); err == nil && done {
			r.add(Result{Link: t.Link, Classification: Skipped})
			continue
		}
		if err := v.limiter.Wait(ctx); err != nil {
			break
		}
		r.add(v.Verify(ctx, conn, t))
	}
	v.log.Info().Int("total", r.Total).Int("working", r.Counts[Working]).
		Int("requires_approval", r.Counts[RequiresApproval]).
		Int("expired", r.Counts[Expired]).Int("invalid", r.Counts[Invalid]).
		Int("error", r.Counts[Error]).Msg("verification batch done")
	return *r
}
