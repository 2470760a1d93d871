package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/groupyard/internal/campaign"
	"github.com/zulandar/groupyard/internal/delivery"
	"github.com/zulandar/groupyard/internal/models"
	"github.com/zulandar/groupyard/internal/platform"
	"github.com/zulandar/groupyard/internal/store"
)

// campaignView is a campaign row with its results decoded.
type campaignView struct {
	*models.Campaign
	Summary *delivery.Summary `json:"summary,omitempty"`
}

func viewOf(c *models.Campaign) campaignView {
	v := campaignView{Campaign: c}
	if sum, err := campaign.Results(c); err == nil && sum.Total > 0 {
		v.Summary = &sum
	}
	return v
}

func (s *server) listCampaigns(c *gin.Context) {
	account := platform.NormalizeKey(c.Query("account"))
	rows, err := s.Store.CampaignsByStatus(c.Query("status"), account)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]campaignView, 0, len(rows))
	for i := range rows {
		views = append(views, viewOf(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": views, "count": len(views)})
}

func (s *server) createCampaign(c *gin.Context) {
	var spec campaign.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		badRequest(c, "invalid campaign: "+err.Error())
		return
	}
	row, err := campaign.Build(spec)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Store.CreateCampaign(row); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(row))
}

// campaignStats adds the IDs of campaigns with a live run in this process.
func (s *server) campaignStats(c *gin.Context) {
	st, err := s.Store.CampaignStats(platform.NormalizeKey(c.Query("account")))
	if err != nil {
		writeError(c, err)
		return
	}
	live := []uint{}
	if s.Runner != nil {
		live = s.Runner.Running()
	}
	c.JSON(http.StatusOK, struct {
		store.CampaignStats
		Live []uint `json:"live"`
	}{st, live})
}

func (s *server) getCampaign(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	row, err := s.Store.GetCampaign(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(row))
}

func (s *server) deleteCampaign(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.Store.DeleteCampaign(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) startCampaign(c *gin.Context) {
	if !available(c, s.Runner != nil, "campaign runner") {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.Runner.Start(s.ctx, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": models.CampaignRunning})
}

func (s *server) resumeCampaign(c *gin.Context) {
	if !available(c, s.Runner != nil, "campaign runner") {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.Runner.Resume(s.ctx, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": models.CampaignRunning})
}

// steerCampaign wraps pause and stop, which only apply to live runs.
func (s *server) steerCampaign(fn func(id uint) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !available(c, s.Runner != nil, "campaign runner") {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := fn(id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": id})
	}
}
