// Package server is the HTTP delivery adapter: it hosts the engine's
// command surface and the notification intent drain for whatever bot
// front-end actually talks to the chat platform.
package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MARistheone/Bother-Bot/internal/engine"
)

// Server provides HTTP handlers around the accountability engine.
type Server struct {
	router  *gin.Engine
	engine  *engine.Engine
	intents *engine.IntentQueue
	config  engine.ConfigStore
	logger  *slog.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(eng *engine.Engine, intents *engine.IntentQueue, config engine.ConfigStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api"))

	srv := &Server{
		router:  router,
		engine:  eng,
		intents: intents,
		config:  config,
		logger:  logger,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.router
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		users := api.Group("/users")
		{
			users.POST(":id/register", s.handleRegister)
			users.POST(":id/channel", s.handleAssignChannel)
			users.GET(":id/tasks", s.handleListTasks)
		}

		tasks := api.Group("/tasks")
		{
			tasks.POST("", s.handleAddTask)
			tasks.PATCH(":id", s.handleEditTask)
			tasks.POST(":id/done", s.handleMarkDone)
			tasks.POST(":id/snooze", s.handleSnooze)
			tasks.POST(":id/message", s.handleRecordMessage)
		}

		api.GET("/active-tasks", s.handleActiveTasks)
		api.GET("/board", s.handleBoard)
		api.GET("/intents", s.handleDrainIntents)
		api.GET("/config/:key", s.handleGetConfig)
		api.PUT("/config/:key", s.handleSetConfig)
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleDrainIntents hands all pending notification intents to the
// delivery layer. Draining commits: delivery failures downstream never
// roll back engine state.
func (s *Server) handleDrainIntents(c *gin.Context) {
	drained := s.intents.Drain()
	c.JSON(http.StatusOK, gin.H{"intents": drained})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// respondResult maps a command outcome onto an HTTP response.
func respondResult(c *gin.Context, res engine.Result) {
	switch res.Outcome {
	case engine.OutcomeOK, engine.OutcomeAlreadyRegistered:
		c.JSON(http.StatusOK, res)
	case engine.OutcomeAlreadyDone:
		c.JSON(http.StatusConflict, res)
	case engine.OutcomeNotFound:
		c.JSON(http.StatusNotFound, res)
	case engine.OutcomeInvalid:
		c.JSON(http.StatusBadRequest, res)
	default:
		c.JSON(http.StatusInternalServerError, res)
	}
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if err != nil {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
