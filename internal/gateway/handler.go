package gateway

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/dbwriter"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/orchestrator"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/validator"
)

// Handler handles HTTP requests for the gateway. It is intake only: it
// validates, persists the Request row, and hands off to the core
// orchestrator.
type Handler struct {
	orch *orchestrator.Orchestrator
	db   *dbwriter.Writer
}

// NewHandler creates a new Handler
func NewHandler(orch *orchestrator.Orchestrator, db *dbwriter.Writer) *Handler {
	return &Handler{orch: orch, db: db}
}

// Compare handles POST /v1/compare: streams tokens from every requested
// model back to the caller as server-sent events.
func (h *Handler) Compare(c *gin.Context) {
	requestID := c.GetString("request_id")
	start := time.Now()

	var incoming validator.IncomingRequest
	if err := c.ShouldBindJSON(&incoming); err != nil {
		log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"event":      "parse_error",
		}).Warn("Failed to parse request body")

		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"type":    "invalid_request",
				"message": "Failed to parse request body: " + err.Error(),
			},
		})
		return
	}

	if err := validator.Validate(&incoming); err != nil {
		log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"event":      "validation_failed",
		}).Warn("Request validation failed")

		if validErrs, ok := err.(*validator.ValidationErrors); ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"type":    "validation_error",
					"message": "Request validation failed",
					"details": validErrs.Errors,
				},
			})
			return
		}

		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"type":    "validation_error",
				"message": err.Error(),
			},
		})
		return
	}

	req := models.Request{
		RequestID: requestID,
		Prompt:    incoming.Prompt,
		Models:    incoming.Models,
		Status:    models.RequestRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.db.UpsertRequest(c.Request.Context(), req); err != nil {
		log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to persist request row")

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"type": "internal_error", "message": "failed to persist request"},
		})
		return
	}

	log.WithFields(log.Fields{
		"request_id": requestID,
		"models":     req.Models,
		"event":      "validated",
	}).Info("Request validated")

	h.streamCompare(c, req, requestID, start)
}

func (h *Handler) streamCompare(c *gin.Context, req models.Request, requestID string, start time.Time) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Request-ID", requestID)

	ctx := c.Request.Context()
	events := make(chan orchestrator.StreamEvent)
	go h.orch.RunRequest(ctx, req, events)

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.Final {
				c.SSEvent("done", gin.H{"outcome": ev.Outcome})
				log.WithFields(log.Fields{
					"request_id": requestID,
					"outcome":    ev.Outcome,
					"latency_ms": time.Since(start).Milliseconds(),
					"event":      "stream_complete",
				}).Info("Attempt finished")
				return true
			}
			c.SSEvent("token", gin.H{"text": ev.Text})
			return true
		case <-ctx.Done():
			log.WithFields(log.Fields{
				"request_id": requestID,
				"event":      "stream_cancelled",
			}).Warn("Streaming request cancelled")
			return false
		}
	})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
