package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/groupyard/internal/platform"
	"github.com/zulandar/groupyard/internal/session"
)

type sessionRequest struct {
	Phone string `json:"phone" binding:"required"`
}

func (s *server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.Sessions.List()})
}

// createSession starts (or returns) the session for a phone. The scan
// payload, if any, arrives later via GET /api/sessions/:key or /api/events.
func (s *server) createSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "phone is required")
		return
	}
	sess, err := s.Sessions.GetOrCreate(c.Request.Context(), req.Phone)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"key":         sess.Key,
		"instance_id": sess.InstanceID,
		"state":       sess.State(),
		"stored":      s.Sessions.HasStoredCredential(sess.Key),
	})
}

func (s *server) getSession(c *gin.Context) {
	key := platform.NormalizeKey(c.Param("key"))
	state := s.Sessions.State(key)
	if state == session.StateNotFound {
		c.JSON(http.StatusNotFound, gin.H{"key": key, "state": state})
		return
	}
	resp := gin.H{"key": key, "state": state}
	if sess, ok := s.Sessions.Session(key); ok {
		resp["state"] = sess.State()
		if qr := sess.QR(); qr != "" {
			resp["qr"] = qr
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) closeSession(c *gin.Context) {
	if err := s.Sessions.Close(c.Request.Context(), c.Param("key")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
