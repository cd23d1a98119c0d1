// server/rooms_http.go
package server

import (
	"github.com/gin-gonic/gin"

	"github.com/wfunc/partyserver/errs"
	"github.com/wfunc/partyserver/middleware"
	"github.com/wfunc/partyserver/models"
)

type createRoomRequest struct {
	Name       string `json:"name" binding:"required"`
	Visibility string `json:"visibility"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validationf("invalid request body: %v", err))
		return
	}
	if req.Visibility == "" {
		req.Visibility = models.RoomVisibilityPublic
	}

	room, err := s.rooms.CreateRoom(req.Name, req.Visibility, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, room)
}

func (s *Server) handleGetRoom(c *gin.Context) {
	details, err := s.rooms.RoomDetails(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, details)
}

func (s *Server) handleUpdateRoom(c *gin.Context) {
	var patch models.RoomPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, errs.Validationf("invalid request body: %v", err))
		return
	}

	room, err := s.rooms.UpdateRoom(c.Param("id"), patch, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, room)
}

func (s *Server) handleJoinRoom(c *gin.Context) {
	receipt, err := s.rooms.JoinRoom(middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, receipt)
}

func (s *Server) handleLeaveRoom(c *gin.Context) {
	left, err := s.rooms.LeaveRoom(middleware.UserID(c), c.Param("id"), "left")
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"left": left})
}

func (s *Server) handleCreateJoinRequest(c *gin.Context) {
	req, err := s.rooms.CreateJoinRequest(middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, req)
}

type resolveRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

func (s *Server) handleResolveJoinRequest(c *gin.Context) {
	var body resolveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errs.Validationf("invalid request body: %v", err))
		return
	}

	req, err := s.rooms.ResolveJoinRequest(c.Param("id"), middleware.UserID(c), *body.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, req)
}
