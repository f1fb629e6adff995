package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MARistheone/Bother-Bot/internal/models"
)

// handleRegister creates the user record. Registering twice is a
// distinguishable no-op.
func (s *Server) handleRegister(c *gin.Context) {
	res, err := s.engine.RegisterUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondResult(c, res)
}

type assignChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

// handleAssignChannel records the user's private channel once the
// delivery layer has created it.
func (s *Server) handleAssignChannel(c *gin.Context) {
	var req assignChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	res, err := s.engine.AssignPrivateChannel(c.Request.Context(), c.Param("id"), req.ChannelID)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondResult(c, res)
}

// handleListTasks lists a user's tasks, optionally filtered by ?status=.
func (s *Server) handleListTasks(c *gin.Context) {
	var filter *models.Status
	if raw := c.Query("status"); raw != "" {
		status := models.Status(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		filter = &status
	}

	tasks, err := s.engine.TasksForUser(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// handleBoard returns the accountability board data: every user with
// their tasks, ordered by score descending.
func (s *Server) handleBoard(c *gin.Context) {
	board, err := s.engine.Board(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"board": board})
}
