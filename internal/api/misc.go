package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/groupyard/internal/models"
	"github.com/zulandar/groupyard/internal/platform"
)

type permissionRequest struct {
	Account string   `json:"account" binding:"required"`
	Groups  []string `json:"groups" binding:"required"`
}

func (s *server) checkPermissions(c *gin.Context) {
	if !available(c, s.Checker != nil, "permission checker") {
		return
	}
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Groups) == 0 {
		badRequest(c, "account and groups are required")
		return
	}
	conn, _, err := s.readyConn(req.Account)
	if err != nil {
		writeError(c, err)
		return
	}
	results := s.Checker.CheckMany(c.Request.Context(), conn, req.Groups)
	sendable := 0
	for _, r := range results {
		if r.CanSend {
			sendable++
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "can_send": sendable, "total": len(results)})
}

func (s *server) listAccounts(c *gin.Context) {
	rows, err := s.Store.ListAccounts()
	if err != nil {
		writeError(c, err)
		return
	}
	type accountView struct {
		models.AccountPhone
		State   string `json:"state"`
		Joining bool   `json:"joining"`
	}
	views := make([]accountView, 0, len(rows))
	for _, a := range rows {
		views = append(views, accountView{
			AccountPhone: a,
			State:        string(s.Sessions.State(a.PhoneNumber)),
			Joining:      s.joinInProgress(platform.NormalizeKey(a.PhoneNumber)),
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

type templateRequest struct {
	Name     string `json:"name" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Category string `json:"category"`
}

func (s *server) listTemplates(c *gin.Context) {
	rows, err := s.Store.ListTemplates(c.Query("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": rows})
}

func (s *server) createTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and message are required")
		return
	}
	t := &models.Template{Name: req.Name, Message: req.Message, Category: req.Category}
	if err := s.Store.CreateTemplate(t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *server) updateTemplate(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and message are required")
		return
	}
	if req.Category == "" {
		req.Category = "general"
	}
	if err := s.Store.UpdateTemplate(id, req.Name, req.Message, req.Category); err != nil {
		writeError(c, err)
		return
	}
	t, err := s.Store.GetTemplate(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) deleteTemplate(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.Store.DeleteTemplate(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) templateCategories(c *gin.Context) {
	cats, err := s.Store.Categories()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}
