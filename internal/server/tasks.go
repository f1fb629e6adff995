package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MARistheone/Bother-Bot/internal/engine"
	"github.com/MARistheone/Bother-Bot/internal/models"
)

type addTaskRequest struct {
	UserID      string `json:"user_id"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Recurrence  string `json:"recurrence"`
}

type editTaskRequest struct {
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
	Recurrence  *string `json:"recurrence"`
}

// handleAddTask creates a task for a registered user.
func (s *Server) handleAddTask(c *gin.Context) {
	var req addTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("user_id is required"))
		return
	}

	recurrence, err := models.ParseRecurrence(req.Recurrence)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	var due time.Time
	if req.DueDate != "" {
		due, err = models.ParseDueDate(req.DueDate)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
	}

	res, err := s.engine.AddTask(c.Request.Context(), req.UserID, req.Description, due, recurrence)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	if res.Outcome == engine.OutcomeOK {
		c.JSON(http.StatusCreated, res)
		return
	}
	respondResult(c, res)
}

// handleEditTask partially updates a task's details.
func (s *Server) handleEditTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req editTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	changes := engine.EditChanges{Description: req.Description}
	if req.DueDate != nil {
		due, err := models.ParseDueDate(*req.DueDate)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
		changes.DueDate = &due
	}
	if req.Recurrence != nil {
		recurrence, err := models.ParseRecurrence(*req.Recurrence)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
		changes.Recurrence = &recurrence
	}

	res, err := s.engine.EditTask(c.Request.Context(), id, changes)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondResult(c, res)
}

// handleMarkDone completes a task.
func (s *Server) handleMarkDone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := s.engine.MarkDone(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondResult(c, res)
}

// handleSnooze pushes a task out by one day.
func (s *Server) handleSnooze(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := s.engine.Snooze(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondResult(c, res)
}

type recordMessageRequest struct {
	MessageID string `json:"message_id"`
}

// handleRecordMessage stores the platform message id for a task after
// the delivery layer sent its first notification.
func (s *Server) handleRecordMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req recordMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	res, err := s.engine.RecordMessageID(c.Request.Context(), id, req.MessageID)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondResult(c, res)
}

// handleActiveTasks lists ids of pending and overdue tasks so the
// delivery layer can re-register message affordances after a restart.
func (s *Server) handleActiveTasks(c *gin.Context) {
	ids, err := s.engine.ActiveTaskIDs(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_ids": ids})
}
