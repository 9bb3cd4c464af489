package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/hostelpass/internal/vision"
)

// Pinger is anything with remote connectivity worth checking at readiness
// time (object storage, the upstream API).
type Pinger interface {
	Ping(ctx context.Context) error
}

type ModelUnit interface {
	Readiness() (vision.Readiness, error)
}

type SystemHandler struct {
	models   ModelUnit // nil in server matching mode
	upstream Pinger
	snapshot Pinger // nil when archiving is disabled
}

func NewSystemHandler(models ModelUnit, upstream, snapshot Pinger) *SystemHandler {
	return &SystemHandler{models: models, upstream: upstream, snapshot: snapshot}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if h.models != nil {
		state, err := h.models.Readiness()
		switch state {
		case vision.Ready:
			checks["models"] = "ok"
		case vision.Loading:
			checks["models"] = "loading"
			healthy = false
		default:
			checks["models"] = err.Error()
			healthy = false
		}
	}

	if err := h.upstream.Ping(ctx); err != nil {
		checks["upstream"] = err.Error()
		healthy = false
	} else {
		checks["upstream"] = "ok"
	}

	if h.snapshot != nil {
		if err := h.snapshot.Ping(ctx); err != nil {
			checks["snapshot"] = err.Error()
			healthy = false
		} else {
			checks["snapshot"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
