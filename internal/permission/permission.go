// Package permission checks whether an account can post in a group.
package permission

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/groupyard/internal/platform"
	"golang.org/x/time/rate"
)

// Reasons reported in Result.Reason.
const (
	ReasonOK        = "can send messages"
	ReasonArchived  = "group archived but sending is allowed"
	ReasonNotGroup  = "not a group"
	ReasonNotMember = "no longer a member of this group"
	ReasonAdminOnly = "only admins can send messages"
	ReasonGone      = "group no longer exists"
)

// Result describes what the account may do in one group. Failures are
// reported here, never as an error.
type Result struct {
	GroupID      string `json:"group_id"`
	CanSend      bool   `json:"can_send"`
	Reason       string `json:"reason"`
	InGroup      bool   `json:"in_group"`
	Archived     bool   `json:"archived,omitempty"`
	AdminOnly    bool   `json:"admin_only,omitempty"`
	IsAdmin      bool   `json:"is_admin,omitempty"`
	Name         string `json:"name,omitempty"`
	Participants int    `json:"participants,omitempty"`
	Error        bool   `json:"error,omitempty"`
}

// Checker inspects group metadata through a Connection.
type Checker struct {
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a Checker. CheckMany waits interval between lookups.
func New(interval time.Duration, log zerolog.Logger) *Checker {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Checker{
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With().Str("component", "permission").Logger(),
	}
}

// Check loads groupID and classifies the account's posting rights.
func (c *Checker) Check(ctx context.Context, conn platform.Connection, groupID string) Result {
	res := Result{GroupID: groupID}
	chatID := platform.GroupChatID(groupID)
	if !platform.IsGroupID(chatID) {
		res.Reason = ReasonNotGroup
		return res
	}
	chat, err := conn.ChatByID(ctx, chatID)
	if err != nil {
		res.Error = true
		msg := err.Error()
		if strings.Contains(strings.ToLower(msg), "not found") || strings.Contains(msg, "404") {
			res.Reason = ReasonGone
		} else {
			res.Reason = "permission check failed: " + msg
		}
		c.log.Warn().Str("group", groupID).Err(err).Msg("permission check failed")
		return res
	}
	if !chat.IsGroup {
		res.Reason = ReasonNotGroup
		return res
	}

	self := conn.SelfID()
	var me *platform.Participant
	for i := range chat.Participants {
		if chat.Participants[i].ID == self {
			me = &chat.Participants[i]
			break
		}
	}
	if me == nil {
		res.Reason = ReasonNotMember
		return res
	}

	res.InGroup = true
	res.Name = chat.Name
	res.Participants = len(chat.Participants)
	res.Archived = chat.Archived
	res.IsAdmin = me.IsAdmin
	if chat.Announce && !me.IsAdmin {
		res.AdminOnly = true
		res.Reason = ReasonAdminOnly
		return res
	}
	res.CanSend = true
	res.Reason = ReasonOK
	if chat.Archived {
		res.Reason = ReasonArchived
	}
	return res
}

// CheckMany checks each group in order, paced by the checker's interval.
// It returns what was checked before ctx ended.
func (c *Checker) CheckMany(ctx context.Context, conn platform.Connection, groupIDs []string) map[string]Result {
	out := make(map[string]Result, len(groupIDs))
	for _, id := range groupIDs {
		if err := c.limiter.Wait(ctx); err != nil {
			break
		}
		out[id] = c.Check(ctx, conn, id)
	}
	return out
}
