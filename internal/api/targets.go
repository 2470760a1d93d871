package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/groupyard/internal/join"
	"github.com/zulandar/groupyard/internal/models"
	"github.com/zulandar/groupyard/internal/platform"
)

var (
	errNotReady       = errors.New("session not ready")
	errJoinInProgress = errors.New("join batch already in progress")
)

type targetInput struct {
	Link            string `json:"link"`
	Name            string `json:"name"`
	Country         string `json:"country"`
	CountryOrigin   string `json:"country_origin"`
	Members         string `json:"members"`
	AdminPermission string `json:"admin_permission"`
}

type importRequest struct {
	Targets []targetInput `json:"targets" binding:"required"`
}

// batchRequest selects pending targets for an account to work through.
type batchRequest struct {
	Account string `json:"account" binding:"required"`
	Country string `json:"country"`
	Limit   int    `json:"limit"`
}

func (s *server) importTargets(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "targets are required")
		return
	}
	rows := make([]models.Target, 0, len(req.Targets))
	for _, t := range req.Targets {
		rows = append(rows, models.Target{
			Link:            t.Link,
			Name:            t.Name,
			Country:         t.Country,
			CountryOrigin:   t.CountryOrigin,
			Members:         t.Members,
			AdminPermission: t.AdminPermission,
		})
	}
	n, err := s.Store.InsertTargets(rows)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"received": len(rows), "inserted": n})
}

func (s *server) targetStats(c *gin.Context) {
	st, err := s.Store.StatsByCountry(c.Query("country"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *server) listTargets(query func(country string, limit int) ([]models.Target, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := query(c.Query("country"), limitQuery(c, 100))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"targets": rows, "count": len(rows)})
	}
}

func (s *server) listTerminal(query func() ([]models.Target, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := query()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"targets": rows, "count": len(rows)})
	}
}

// readyConn resolves the ready connection for a batch request.
func (s *server) readyConn(account string) (platform.Connection, string, error) {
	key := platform.NormalizeKey(account)
	conn, ok := s.Sessions.ReadyConnection(key)
	if !ok {
		return nil, key, fmt.Errorf("account %s: %w", key, errNotReady)
	}
	return conn, key, nil
}

// verifyTargets checks unverified pending targets synchronously and
// returns the grouped report.
func (s *server) verifyTargets(c *gin.Context) {
	if !available(c, s.Verifier != nil, "verifier") {
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "account is required")
		return
	}
	conn, _, err := s.readyConn(req.Account)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	targets, err := s.Store.Unverified(req.Country, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Verifier.VerifyBatch(c.Request.Context(), conn, targets))
}

// joinTargets starts a join batch in the background. Batches are paced
// in minutes, so the request only reports how many targets were queued.
func (s *server) joinTargets(c *gin.Context) {
	if !available(c, s.Joiner != nil, "joiner") {
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "account is required")
		return
	}
	conn, key, err := s.readyConn(req.Account)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	targets, err := s.Store.PendingByCountry(req.Country, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	s.mu.Lock()
	if s.joining[key] {
		s.mu.Unlock()
		writeError(c, fmt.Errorf("account %s: %w", key, errJoinInProgress))
		return
	}
	s.joining[key] = true
	s.mu.Unlock()

	go s.runJoin(key, conn, targets)
	c.JSON(http.StatusAccepted, gin.H{"account": key, "queued": len(targets)})
}

func (s *server) runJoin(key string, conn platform.Connection, targets []models.Target) {
	defer func() {
		s.mu.Lock()
		delete(s.joining, key)
		s.mu.Unlock()
	}()
	results := s.Joiner.JoinBatch(s.ctx, conn, targets, s.JoinDelay)
	joined := 0
	for _, r := range results {
		if r.Outcome == join.Joined {
			joined++
		}
	}
	s.Log.Info().Str("account", key).Int("attempted", len(results)).Int("joined", joined).Msg("join batch finished")
}

// joinInProgress reports whether a background join batch is running for key.
func (s *server) joinInProgress(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joining[key]
}
