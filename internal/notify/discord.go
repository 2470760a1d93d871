package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// discordSession is the subset of *discordgo.Session used here.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts events to a Discord channel as embeds.
type DiscordNotifier struct {
	sess    discordSession
	channel string
	backoff time.Duration
}

// DiscordOpts holds parameters for NewDiscordNotifier.
type DiscordOpts struct {
	Token   string
	Channel string
	Session discordSession // optional, for tests
}

// NewDiscordNotifier creates a DiscordNotifier. Only the REST API is used;
// no gateway connection is opened.
func NewDiscordNotifier(opts DiscordOpts) (*DiscordNotifier, error) {
	if opts.Channel == "" {
		return nil, fmt.Errorf("notify: discord: channel is required")
	}
	sess := opts.Session
	if sess == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("notify: discord: token is required")
		}
		dg, err := discordgo.New("Bot " + opts.Token)
		if err != nil {
			return nil, fmt.Errorf("notify: discord: create session: %w", err)
		}
		sess = dg
	}
	return &DiscordNotifier{sess: sess, channel: opts.Channel, backoff: time.Second}, nil
}

// Notify posts ev, retrying on HTTP 429.
func (n *DiscordNotifier) Notify(ctx context.Context, ev Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s: %s", ev.AccountKey, ev.Kind),
		Description: ev.Detail,
		Color:       embedColor(severityColors[severity(ev.Kind)]),
	}
	if !ev.At.IsZero() {
		embed.Timestamp = ev.At.UTC().Format(time.RFC3339)
	}
	err := retry(ctx, func() error {
		_, sendErr := n.sess.ChannelMessageSendEmbed(n.channel, embed)
		return sendErr
	}, func(err error, attempt int) (time.Duration, bool) {
		var restErr *discordgo.RESTError
		if !errors.As(err, &restErr) || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return 0, false
		}
		return backoff(n.backoff, attempt), true
	})
	if err != nil {
		return fmt.Errorf("notify: discord: send message: %w", err)
	}
	return nil
}

// embedColor converts "#rrggbb" to Discord's integer color.
func embedColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
