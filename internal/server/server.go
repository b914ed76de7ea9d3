package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/pipeline"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// Server exposes the engine to collectors and the administrative surface
// to the surrounding service layer.
type Server struct {
	service *dlp.Service
	logger  *zap.Logger
	http    *http.Server
}

func New(addr string, service *dlp.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{service: service, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/events", s.handleEvent)
		v1.POST("/events/batch", s.handleBatch)

		admin := v1.Group("/admin")
		{
			admin.POST("/policies/reload", s.handleReload)
			admin.GET("/policies/version", s.handleVersion)
			admin.POST("/fingerprints", s.handleAddFingerprint)
			admin.DELETE("/fingerprints/:digest", s.handleRemoveFingerprint)
		}
	}

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"policy_set_version": s.service.PolicySetVersion(),
	})
}

// outcomeResponse is the wire form of a pipeline outcome.
type outcomeResponse struct {
	EventID        string                      `json:"event_id"`
	Status         pipeline.Status             `json:"status"`
	Classification *types.ClassificationResult `json:"classification,omitempty"`
	Alerts         []*types.Alert              `json:"alerts,omitempty"`
	Severity       types.Severity              `json:"severity,omitempty"`
	Blocked        bool                        `json:"blocked"`
	Error          string                      `json:"error,omitempty"`
	Retryable      bool                        `json:"retryable,omitempty"`
}

func toResponse(outcome *pipeline.Outcome) outcomeResponse {
	resp := outcomeResponse{
		EventID:        outcome.EventID,
		Status:         outcome.Status,
		Classification: outcome.Classification,
		Alerts:         outcome.Alerts,
		Severity:       outcome.Severity,
		Blocked:        outcome.Blocked,
	}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
		resp.Retryable = types.Retryable(outcome.Err)
	}
	return resp
}

func (s *Server) handleEvent(c *gin.Context) {
	var event types.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event: " + err.Error()})
		return
	}

	outcome, err := s.service.Evaluate(c.Request.Context(), &event)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, toResponse(outcome))
	case types.IsValidationError(err):
		c.JSON(http.StatusBadRequest, toResponse(outcome))
	case errors.Is(err, types.ErrBackpressure):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusTooManyRequests, toResponse(outcome))
	case types.Retryable(err):
		// Persistence failed; the verdict is in the body for resubmission.
		c.JSON(http.StatusServiceUnavailable, toResponse(outcome))
	default:
		c.JSON(http.StatusInternalServerError, toResponse(outcome))
	}
}

type batchRequest struct {
	Events []*types.Event `json:"events" binding:"required"`
}

func (s *Server) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed batch: " + err.Error()})
		return
	}

	outcomes := s.service.EvaluateBatch(c.Request.Context(), req.Events)
	responses := make([]outcomeResponse, len(outcomes))
	for i, outcome := range outcomes {
		responses[i] = toResponse(outcome)
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": responses})
}

func (s *Server) handleReload(c *gin.Context) {
	if err := s.service.ReloadPolicies(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if types.IsPolicyCompileError(err) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"error":              err.Error(),
			"policy_set_version": s.service.PolicySetVersion(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"policy_set_version": s.service.PolicySetVersion(),
		"policies":           s.service.PolicyCount(),
	})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"policy_set_version": s.service.PolicySetVersion(),
		"policies":           s.service.PolicyCount(),
	})
}

type fingerprintRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) handleAddFingerprint(c *gin.Context) {
	var req fingerprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	digest := s.service.RegisterFingerprint(req.Content)
	c.JSON(http.StatusCreated, gin.H{"digest": digest})
}

func (s *Server) handleRemoveFingerprint(c *gin.Context) {
	s.service.RemoveFingerprint(c.Param("digest"))
	c.Status(http.StatusNoContent)
}
