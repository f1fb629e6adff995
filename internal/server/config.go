package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type configRequest struct {
	Value string `json:"value"`
}

// handleGetConfig returns a stored config value. Unset keys come back
// with an empty value rather than an error.
func (s *Server) handleGetConfig(c *gin.Context) {
	value, err := s.config.GetConfig(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
}

// handleSetConfig stores a config value such as the shame channel id.
func (s *Server) handleSetConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.config.SetConfig(c.Request.Context(), c.Param("key"), req.Value); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": req.Value})
}
