package capture

import "github.com/google/uuid"

// Flow distinguishes the two capture variants. They share one pipeline;
// verification additionally requires a location fix and reports the matched
// student's name.
type Flow string

const (
	FlowVerify Flow = "verify"
	FlowEnroll Flow = "enroll"
)

// Phase is the session state machine position.
type Phase int

const (
	Idle Phase = iota
	Capturing
	Reviewing
	Extracting
	Submitting
	Succeeded
	Recoverable
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Reviewing:
		return "reviewing"
	case Extracting:
		return "extracting"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Recoverable:
		return "recoverable"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Category is the coarse presentation class of the visible status message.
type Category string

const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryWarning Category = "warning"
	CategoryError   Category = "error"
)

// ErrorKind is the internal error taxonomy. The UI only needs Category;
// the kind exists so outcomes are classified explicitly instead of by
// message matching everywhere.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindCameraDenied
	KindLocationDenied
	KindModelLoad
	KindNoFace
	KindDuplicate
	KindNetwork
	KindUnauthorized
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCameraDenied:
		return "camera_denied"
	case KindLocationDenied:
		return "location_denied"
	case KindModelLoad:
		return "model_load"
	case KindNoFace:
		return "no_face"
	case KindDuplicate:
		return "duplicate"
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the session, safe to hand to
// observers.
type Status struct {
	SessionID   uuid.UUID `json:"sessionId"`
	Flow        Flow      `json:"flow"`
	Phase       Phase     `json:"phase"`
	PhaseName   string    `json:"phaseName"`
	Message     string    `json:"message"`
	Category    Category  `json:"category"`
	Kind        ErrorKind `json:"-"`
	KindName    string    `json:"kind"`
	HasFrame    bool      `json:"hasFrame"`
	HasFix      bool      `json:"hasFix"`
	StudentName string    `json:"studentName,omitempty"`
	Terminal    bool      `json:"terminal"`
}
