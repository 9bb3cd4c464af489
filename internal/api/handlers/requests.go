package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/hostelpass/internal/session"
	"github.com/your-org/hostelpass/internal/upstream"
	"github.com/your-org/hostelpass/pkg/dto"
)

type RequestHandler struct {
	client *upstream.Client
	store  session.Store
}

func NewRequestHandler(client *upstream.Client, store session.Store) *RequestHandler {
	return &RequestHandler{client: client, store: store}
}

func (h *RequestHandler) signedIn(c *gin.Context) (string, bool) {
	id := h.store.Get(session.KeyStudentID)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return "", false
	}
	return id, true
}

func (h *RequestHandler) List(c *gin.Context) {
	id, ok := h.signedIn(c)
	if !ok {
		return
	}

	requests, err := h.client.Requests(c.Request.Context(), id)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "total": len(requests)})
}

func (h *RequestHandler) Create(c *gin.Context) {
	id, ok := h.signedIn(c)
	if !ok {
		return
	}

	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.client.CreateRequest(c.Request.Context(), id, upstream.CreateRequestInput{
		Type:     req.Type,
		Reason:   req.Reason,
		FromDate: req.FromDate,
		ToDate:   req.ToDate,
	})
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *RequestHandler) RoomComplaints(c *gin.Context) {
	id, ok := h.signedIn(c)
	if !ok {
		return
	}

	complaints, err := h.client.RoomComplaints(c.Request.Context(), id)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaints": complaints, "total": len(complaints)})
}

func (h *RequestHandler) CreateComplaint(c *gin.Context) {
	id, ok := h.signedIn(c)
	if !ok {
		return
	}

	var req dto.CreateComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.client.CreateComplaint(c.Request.Context(), upstream.CreateComplaintInput{
		StudentID:   id,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "filed"})
}
