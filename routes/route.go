package routes

import (
	"errors"
	"net/http"
	"time"

	"arenaengine/model"
	"arenaengine/pkg"
	"arenaengine/service"
	"arenaengine/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handler struct {
	svc    *service.CompilerService
	logger *zap.Logger
}

func NewHandler(svc *service.CompilerService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// NewRouter wires every HTTP endpoint. limiter may be nil.
func NewRouter(h *Handler, limiter *pkg.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(h.logger))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if limiter != nil {
		api.Use(limiter.Limit())
	}
	api.POST("/compiler/run", h.HandleRun)
	api.POST("/problems/run", h.HandleProblemRun)
	api.GET("/problems/run/stream", h.HandleProblemRunStream)
	api.GET("/problems/runs/:id", h.HandleGetRun)

	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleRun always answers 200; failures, including a malformed body, are
// reported with success=false.
func (h *Handler) HandleRun(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		msg := "invalid request: " + err.Error()
		c.JSON(http.StatusOK, model.RunResponse{Error: &msg})
		return
	}

	c.JSON(http.StatusOK, h.svc.Run(c.Request.Context(), req))
}

func (h *Handler) HandleProblemRun(c *gin.Context) {
	var req model.ProblemRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, model.ProblemRunResponse{
			Outcomes: []model.TestCaseOutcome{},
			Error:    model.ErrorString("invalid request: " + err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, h.svc.RunProblem(c.Request.Context(), req, nil))
}

func (h *Handler) HandleGetRun(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "run not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load run", zap.String("run", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("client", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
