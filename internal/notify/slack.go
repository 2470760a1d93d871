package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	slackapi "github.com/slack-go/slack"
)

// slackClient is the subset of the Slack API used here.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

var severityColors = map[string]string{
	"success": "#36a64f",
	"warning": "#daa038",
	"error":   "#d00000",
	"info":    "#439fe0",
}

// SlackNotifier posts events to a Slack channel.
type SlackNotifier struct {
	client  slackClient
	channel string
	backoff time.Duration
}

// SlackOpts holds parameters for NewSlackNotifier.
type SlackOpts struct {
	Token   string
	Channel string
	Client  slackClient // optional, for tests
}

// NewSlackNotifier creates a SlackNotifier.
func NewSlackNotifier(opts SlackOpts) (*SlackNotifier, error) {
	if opts.Channel == "" {
		return nil, fmt.Errorf("notify: slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("notify: slack: token is required")
		}
		client = slackapi.New(opts.Token)
	}
	return &SlackNotifier{client: client, channel: opts.Channel, backoff: time.Second}, nil
}

// Notify posts ev as a colored attachment, retrying on rate limits.
func (n *SlackNotifier) Notify(ctx context.Context, ev Event) error {
	att := slackapi.Attachment{
		Title:  fmt.Sprintf("%s: %s", ev.AccountKey, ev.Kind),
		Text:   ev.Detail,
		Color:  severityColors[severity(ev.Kind)],
		Footer: "groupyard",
	}
	if !ev.At.IsZero() {
		att.Ts = json.Number(strconv.FormatInt(ev.At.Unix(), 10))
	}
	options := []slackapi.MsgOption{
		slackapi.MsgOptionText(Text(ev), false),
		slackapi.MsgOptionAttachments(att),
	}
	err := retry(ctx, func() error {
		_, _, postErr := n.client.PostMessage(n.channel, options...)
		return postErr
	}, func(err error, attempt int) (time.Duration, bool) {
		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return 0, false
		}
		if rle.RetryAfter > 0 {
			return rle.RetryAfter, true
		}
		return backoff(n.backoff, attempt), true
	})
	if err != nil {
		return fmt.Errorf("notify: slack: post message: %w", err)
	}
	return nil
}
