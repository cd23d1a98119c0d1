// server/misc_http.go
package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/partyserver/errs"
	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/middleware"
)

func (s *Server) handleListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := s.notifications.ListForUser(middleware.UserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rows)
}

func (s *Server) handleUploadMedia(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, errs.Validationf("file field is required"))
		return
	}

	upload, err := s.media.Upload(
		c.Request.Context(),
		middleware.UserID(c),
		c.PostForm("room_id"),
		c.PostForm("kind"),
		fileHeader,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, upload)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"uptime":       s.monitor.Uptime().String(),
		"online_users": s.gateway.OnlineUsers(),
	})
}

// handleWS authenticates the token query parameter and hands the request to
// the gateway. The browser WebSocket API cannot set an Authorization header,
// hence the query param.
func (s *Server) handleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token query parameter is required"})
		return
	}

	userID, err := middleware.ParseUserID(token, s.cfg.Auth.JWTSecret)
	if err != nil {
		logger.Log.Debugw("rejected websocket token", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	s.gateway.HandleWS(c.Writer, c.Request, userID)
}
