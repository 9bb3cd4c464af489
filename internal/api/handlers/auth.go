package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/hostelpass/internal/session"
	"github.com/your-org/hostelpass/internal/upstream"
	"github.com/your-org/hostelpass/pkg/dto"
)

type AuthHandler struct {
	client *upstream.Client
	store  session.Store
}

func NewAuthHandler(client *upstream.Client, store session.Store) *AuthHandler {
	return &AuthHandler{client: client, store: store}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.client.Login(c.Request.Context(), req.RollNo, req.Password)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SessionResponse{
		SignedIn:    true,
		StudentID:   result.Student.ID,
		StudentName: result.Student.Name,
		HostelID:    result.Student.HostelID,
		Registered:  result.Student.IsRegistered,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.store.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}

// Session reports who is signed in on the device. An expired token counts
// as signed out: the display routes to the login screen rather than letting
// a submission fail later with 401.
func (h *AuthHandler) Session(c *gin.Context) {
	signedIn := session.SignedIn(h.store) &&
		!session.TokenExpired(h.store.Get(session.KeyToken), time.Now())

	if !signedIn {
		c.JSON(http.StatusOK, dto.SessionResponse{SignedIn: false})
		return
	}

	c.JSON(http.StatusOK, dto.SessionResponse{
		SignedIn:    true,
		StudentID:   h.store.Get(session.KeyStudentID),
		StudentName: h.store.Get(session.KeyStudentName),
		HostelID:    h.store.Get(session.KeyHostelID),
		Registered:  h.store.Get(session.KeyRegistered) == "true",
	})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.client.RegisterStudent(c.Request.Context(), upstream.RegisterStudentInput{
		RollNo:   req.RollNo,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		HostelID: req.HostelID,
		RoomNo:   req.RoomNo,
	})
	if err != nil {
		writeUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "registered"})
}

// writeUpstreamError maps remote API failures onto local responses: the
// upstream's own status when it gave one, 502 when it was unreachable.
func writeUpstreamError(c *gin.Context, err error) {
	if errors.Is(err, upstream.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, sign in again"})
		return
	}
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
