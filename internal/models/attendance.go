package models

// AttendanceResult is the upstream acknowledgement for a marked attendance.
type AttendanceResult struct {
	StudentName string `json:"studentName"`
	Message     string `json:"message"`
}

// LeaveRequest is a leave/permission request record.
type LeaveRequest struct {
	ID        string `json:"_id"`
	StudentID string `json:"studentId"`
	Type      string `json:"type"` // "leave" or "permission"
	Reason    string `json:"reason"`
	FromDate  string `json:"fromDate"`
	ToDate    string `json:"toDate"`
	Status    string `json:"status"` // "pending", "approved", "rejected"
	CreatedAt string `json:"createdAt"`
}

// Complaint is a room complaint record.
type Complaint struct {
	ID          string `json:"_id"`
	StudentID   string `json:"studentId"`
	RoomNo      string `json:"roomNo"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}
