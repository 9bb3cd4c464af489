package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/hostelpass/internal/session"
	"github.com/your-org/hostelpass/internal/upstream"
)

// maxProfileImageBytes bounds uploaded profile photos.
const maxProfileImageBytes = 8 << 20

type StudentHandler struct {
	client *upstream.Client
	store  session.Store
}

func NewStudentHandler(client *upstream.Client, store session.Store) *StudentHandler {
	return &StudentHandler{client: client, store: store}
}

// studentID resolves the signed-in student, aborting with 401 when nobody is.
func (h *StudentHandler) studentID(c *gin.Context) (string, bool) {
	id := h.store.Get(session.KeyStudentID)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return "", false
	}
	return id, true
}

func (h *StudentHandler) Profile(c *gin.Context) {
	id, ok := h.studentID(c)
	if !ok {
		return
	}

	student, err := h.client.GetStudent(c.Request.Context(), id)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"student":   student,
		"image_url": h.client.ProfileImageURL(id),
	})
}

// Registration reports whether a roll number already has a reference face,
// so the display can route between enrollment and verification.
func (h *StudentHandler) Registration(c *gin.Context) {
	rollNo := c.Param("rollNo")
	student, err := h.client.GetRegistration(c.Request.Context(), rollNo)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"roll_no":    rollNo,
		"registered": student.IsRegistered,
	})
}

func (h *StudentHandler) Incharges(c *gin.Context) {
	hostelID := h.store.Get(session.KeyHostelID)
	if hostelID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}

	incharges, err := h.client.Incharges(c.Request.Context(), hostelID)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incharges": incharges, "total": len(incharges)})
}

func (h *StudentHandler) Roomies(c *gin.Context) {
	id, ok := h.studentID(c)
	if !ok {
		return
	}

	roomies, err := h.client.Roomies(c.Request.Context(), id)
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomies": roomies, "total": len(roomies)})
}

func (h *StudentHandler) UploadProfileImage(c *gin.Context) {
	id, ok := h.studentID(c)
	if !ok {
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxProfileImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(image) > maxProfileImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	if err := h.client.UploadProfileImage(c.Request.Context(), id, image); err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "uploaded", "image_url": h.client.ProfileImageURL(id)})
}
