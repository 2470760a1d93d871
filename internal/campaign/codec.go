package campaign

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zulandar/groupyard/internal/delivery"
	"github.com/zulandar/groupyard/internal/models"
	"github.com/zulandar/groupyard/internal/platform"
)

// Spec is the caller-facing description of a new campaign.
type Spec struct {
	Name        string                `json:"name"`
	AccountKey  string                `json:"account_key"`
	Message     string                `json:"message"`
	Recipients  delivery.Recipients   `json:"recipients"`
	Attachments []platform.Attachment `json:"attachments,omitempty"`
	Config      delivery.Config       `json:"config"`
	ScheduledAt *time.Time            `json:"scheduled_at,omitempty"`
}

// Build validates spec and encodes it as a campaign row.
func Build(spec Spec) (*models.Campaign, error) {
	key := platform.NormalizeKey(spec.AccountKey)
	if key == "" {
		return nil, fmt.Errorf("campaign: account key is required")
	}
	job := delivery.Job{
		Message:     spec.Message,
		Attachments: spec.Attachments,
		Recipients:  spec.Recipients,
		Config:      spec.Config,
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("campaign: %w", err)
	}
	recipients, err := json.Marshal(spec.Recipients.IDs)
	if err != nil {
		return nil, fmt.Errorf("campaign: encode recipients: %w", err)
	}
	cfg, err := json.Marshal(spec.Config)
	if err != nil {
		return nil, fmt.Errorf("campaign: encode config: %w", err)
	}
	c := &models.Campaign{
		Name:          spec.Name,
		AccountKey:    key,
		Message:       spec.Message,
		RecipientKind: string(spec.Recipients.Kind),
		Recipients:    string(recipients),
		Config:        string(cfg),
		ScheduledAt:   spec.ScheduledAt,
	}
	if len(spec.Attachments) > 0 {
		att, err := json.Marshal(spec.Attachments)
		if err != nil {
			return nil, fmt.Errorf("campaign: encode attachments: %w", err)
		}
		c.Attachments = string(att)
	}
	return c, nil
}

// Job decodes a stored campaign into a delivery job.
func Job(c *models.Campaign) (delivery.Job, error) {
	job := delivery.Job{
		Message:    c.Message,
		Recipients: delivery.Recipients{Kind: delivery.Kind(c.RecipientKind)},
	}
	if err := json.Unmarshal([]byte(c.Recipients), &job.Recipients.IDs); err != nil {
		return job, fmt.Errorf("campaign %d: decode recipients: %w", c.ID, err)
	}
	if c.Config != "" {
		if err := json.Unmarshal([]byte(c.Config), &job.Config); err != nil {
			return job, fmt.Errorf("campaign %d: decode config: %w", c.ID, err)
		}
	}
	if c.Attachments != "" {
		if err := json.Unmarshal([]byte(c.Attachments), &job.Attachments); err != nil {
			return job, fmt.Errorf("campaign %d: decode attachments: %w", c.ID, err)
		}
	}
	if err := job.Validate(); err != nil {
		return job, fmt.Errorf("campaign %d: %w", c.ID, err)
	}
	return job, nil
}

// Results decodes a campaign's stored results, or an empty summary.
func Results(c *models.Campaign) (delivery.Summary, error) {
	var s delivery.Summary
	if c.Results == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(c.Results), &s); err != nil {
		return s, fmt.Errorf("campaign %d: decode results: %w", c.ID, err)
	}
	return s, nil
}

func encodeResults(s delivery.Summary) string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(b)
}
