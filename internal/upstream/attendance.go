package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/your-org/hostelpass/internal/models"
	"github.com/your-org/hostelpass/internal/vision"
)

// MarkAttendanceInput is the verification submission payload.
type MarkAttendanceInput struct {
	Image     []byte
	StudentID string
	Fix       models.GeoFix
	// Descriptor is nil in server matching mode; the API then matches from
	// the raw image.
	Descriptor vision.Descriptor
}

// MarkAttendance submits one attendance verification. A duplicate submission
// for the current period comes back as ErrAlreadyMarked (the upstream signals
// it only through its display message).
func (c *Client) MarkAttendance(ctx context.Context, in MarkAttendanceInput) (*models.AttendanceResult, error) {
	body, contentType, err := encodeMultipart(in.Image, "attendance.jpg", map[string]string{
		"studentId": in.StudentID,
		"latitude":  strconv.FormatFloat(in.Fix.Latitude, 'f', -1, 64),
		"longitude": strconv.FormatFloat(in.Fix.Longitude, 'f', -1, 64),
	}, in.Descriptor)
	if err != nil {
		return nil, err
	}

	var result models.AttendanceResult
	err = c.do(ctx, "POST", "/attendance/mark", body, contentType, &result)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "already marked") {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyMarked, apiErr.Message)
		}
		return nil, err
	}

	if result.StudentName == "" {
		result.StudentName = "Student"
	}
	return &result, nil
}

// RegisterFace submits one enrollment capture for the given roll number.
func (c *Client) RegisterFace(ctx context.Context, image []byte, rollNo string, descriptor vision.Descriptor) error {
	body, contentType, err := encodeMultipart(image, "face.jpg", map[string]string{
		"rollNo": rollNo,
	}, descriptor)
	if err != nil {
		return err
	}
	return c.do(ctx, "POST", "/attendance/register-face", body, contentType, nil)
}

// encodeMultipart builds the multipart body shared by both capture
// submissions: the compressed JPEG under "image", plain fields, and the
// descriptor JSON-encoded under "faceDescriptor" when present.
func encodeMultipart(image []byte, filename string, fields map[string]string, descriptor vision.Descriptor) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}

	if descriptor != nil {
		encoded, err := json.Marshal(descriptor)
		if err != nil {
			return nil, "", fmt.Errorf("marshal descriptor: %w", err)
		}
		if err := w.WriteField("faceDescriptor", string(encoded)); err != nil {
			return nil, "", fmt.Errorf("write descriptor field: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
