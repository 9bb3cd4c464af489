package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/hostelpass/internal/api/ws"
	"github.com/your-org/hostelpass/internal/capture"
	"github.com/your-org/hostelpass/internal/upstream"
	"github.com/your-org/hostelpass/pkg/dto"
)

type CaptureHandler struct {
	mgr *capture.Manager
}

func NewCaptureHandler(mgr *capture.Manager) *CaptureHandler {
	return &CaptureHandler{mgr: mgr}
}

func (h *CaptureHandler) Start(c *gin.Context) {
	var req dto.StartCaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.mgr.Start(c.Request.Context(), capture.Flow(req.Flow), req.RollNo)
	if err != nil {
		if errors.Is(err, capture.ErrNotSignedIn) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in before marking attendance"})
			return
		}
		// Camera denial still produced a session with a visible terminal
		// status; surface both.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": ws.StatusResponse(st)})
		return
	}

	c.JSON(http.StatusCreated, ws.StatusResponse(st))
}

func (h *CaptureHandler) Status(c *gin.Context) {
	st, err := h.mgr.Status()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ws.StatusResponse(st))
}

func (h *CaptureHandler) Capture(c *gin.Context) {
	st, err := h.mgr.Capture()
	h.respond(c, st, err)
}

func (h *CaptureHandler) Retake(c *gin.Context) {
	st, err := h.mgr.Retake()
	h.respond(c, st, err)
}

// Confirm blocks until the submission resolves. Recoverable outcomes (no
// face, already marked) come back 200 with a warning status; hard failures
// carry the error alongside the resulting status.
func (h *CaptureHandler) Confirm(c *gin.Context) {
	st, err := h.mgr.Confirm(c.Request.Context())
	h.respond(c, st, err)
}

func (h *CaptureHandler) Cancel(c *gin.Context) {
	h.mgr.Cancel()
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// Frame serves the frame held for review so the display can render it.
func (h *CaptureHandler) Frame(c *gin.Context) {
	frame, err := h.mgr.Frame()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", frame)
}

func (h *CaptureHandler) respond(c *gin.Context, st capture.Status, err error) {
	switch {
	case errors.Is(err, capture.ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, capture.ErrBusy), errors.Is(err, capture.ErrWrongPhase):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": ws.StatusResponse(st)})
	case errors.Is(err, upstream.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, sign in again", "status": ws.StatusResponse(st)})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "status": ws.StatusResponse(st)})
	default:
		c.JSON(http.StatusOK, ws.StatusResponse(st))
	}
}
