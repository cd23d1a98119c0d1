// server/games_http.go
package server

import (
	"github.com/gin-gonic/gin"

	"github.com/wfunc/partyserver/errs"
	"github.com/wfunc/partyserver/middleware"
)

type createSessionRequest struct {
	GameID string `json:"game_id" binding:"required"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validationf("invalid request body: %v", err))
		return
	}

	detail, err := s.games.CreateSession(req.GameID, c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, detail)
}

func (s *Server) handleJoinSession(c *gin.Context) {
	detail, err := s.games.JoinSession(c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, detail)
}

func (s *Server) handleLeaveSession(c *gin.Context) {
	left, err := s.games.LeaveSession(c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"left": left})
}

func (s *Server) handleEndSession(c *gin.Context) {
	if err := s.games.EndSession(c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"ended": true})
}

type scoreRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleAddScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validationf("invalid request body: %v", err))
		return
	}

	update, err := s.games.AddScore(c.Param("id"), middleware.UserID(c), req.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, update)
}

type inviteRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

func (s *Server) handleInvite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validationf("invalid request body: %v", err))
		return
	}

	if err := s.games.Invite(c.Param("id"), middleware.UserID(c), req.UserID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"invited": req.UserID})
}
