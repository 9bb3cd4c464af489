package dto

import "github.com/google/uuid"

type StartCaptureRequest struct {
	Flow string `json:"flow" binding:"required,oneof=verify enroll"`
	// RollNo identifies the student for enrollment; ignored for
	// verification, which uses the signed-in session.
	RollNo string `json:"roll_no"`
}

type CaptureStatusResponse struct {
	SessionID   uuid.UUID `json:"session_id"`
	Flow        string    `json:"flow"`
	Phase       string    `json:"phase"`
	Message     string    `json:"message"`
	Category    string    `json:"category"`
	Kind        string    `json:"kind"`
	HasFrame    bool      `json:"has_frame"`
	HasFix      bool      `json:"has_fix"`
	StudentName string    `json:"student_name,omitempty"`
	Terminal    bool      `json:"terminal"`
}

// Detection is one live overlay box in captured-frame pixel coordinates.
type Detection struct {
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
	Confidence float32 `json:"confidence"`
}

// WSMessage is a WebSocket message for the kiosk display: either a status
// transition or an overlay detection batch.
type WSMessage struct {
	Type       string                 `json:"type"` // status, detections
	Status     *CaptureStatusResponse `json:"status,omitempty"`
	Detections []Detection            `json:"detections,omitempty"`
}
