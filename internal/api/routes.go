package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/groupyard/internal/campaign"
	"github.com/zulandar/groupyard/internal/session"
	"github.com/zulandar/groupyard/internal/store"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, s *server) {
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	sessions := router.Group("/api/sessions")
	sessions.GET("", s.listSessions)
	sessions.POST("", s.createSession)
	sessions.GET("/:key", s.getSession)
	sessions.DELETE("/:key", s.closeSession)

	targets := router.Group("/api/targets")
	targets.POST("", s.importTargets)
	targets.GET("/stats", s.targetStats)
	targets.GET("/pending", s.listTargets(s.Store.PendingByCountry))
	targets.GET("/unverified", s.listTargets(s.Store.Unverified))
	targets.GET("/working", s.listTargets(s.Store.Working))
	targets.GET("/approval", s.listTargets(s.Store.RequiresApproval))
	targets.GET("/successful", s.listTerminal(s.Store.Successful))
	targets.GET("/failed", s.listTerminal(s.Store.Failed))
	targets.POST("/verify", s.verifyTargets)
	targets.POST("/join", s.joinTargets)

	campaigns := router.Group("/api/campaigns")
	campaigns.GET("", s.listCampaigns)
	campaigns.POST("", s.createCampaign)
	campaigns.GET("/stats", s.campaignStats)
	campaigns.GET("/:id", s.getCampaign)
	campaigns.DELETE("/:id", s.deleteCampaign)
	campaigns.POST("/:id/start", s.startCampaign)
	campaigns.POST("/:id/pause", s.steerCampaign(func(id uint) error { return s.Runner.Pause(id) }))
	campaigns.POST("/:id/resume", s.resumeCampaign)
	campaigns.POST("/:id/stop", s.steerCampaign(func(id uint) error { return s.Runner.Stop(id) }))

	router.POST("/api/permissions", s.checkPermissions)
	router.GET("/api/accounts", s.listAccounts)

	templates := router.Group("/api/templates")
	templates.GET("", s.listTemplates)
	templates.POST("", s.createTemplate)
	templates.GET("/categories", s.templateCategories)
	templates.PUT("/:id", s.updateTemplate)
	templates.DELETE("/:id", s.deleteTemplate)

	router.GET("/api/events", s.events)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, errNotReady),
		errors.Is(err, errJoinInProgress),
		errors.Is(err, campaign.ErrSessionNotReady),
		errors.Is(err, campaign.ErrAlreadyRunning),
		errors.Is(err, campaign.ErrNotRunning),
		errors.Is(err, campaign.ErrFinal),
		errors.Is(err, campaign.ErrStopping),
		errors.Is(err, store.ErrCampaignFinal),
		errors.Is(err, store.ErrCampaignRunning):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// available writes 503 when an optional component was not wired.
func available(c *gin.Context, ok bool, name string) bool {
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": name + " is not configured"})
	}
	return ok
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func limitQuery(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || n < 0 {
		return def
	}
	return n
}
