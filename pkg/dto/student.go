package dto

type LoginRequest struct {
	RollNo   string `json:"roll_no" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterStudentRequest struct {
	RollNo   string `json:"roll_no" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=6"`
	HostelID string `json:"hostel_id" binding:"required"`
	RoomNo   string `json:"room_no"`
}

// SessionResponse describes who, if anyone, is signed in on the device.
type SessionResponse struct {
	SignedIn    bool   `json:"signed_in"`
	StudentID   string `json:"student_id,omitempty"`
	StudentName string `json:"student_name,omitempty"`
	HostelID    string `json:"hostel_id,omitempty"`
	Registered  bool   `json:"registered"`
}

type CreateRequestRequest struct {
	Type     string `json:"type" binding:"required"`
	Reason   string `json:"reason" binding:"required"`
	FromDate string `json:"from_date" binding:"required"`
	ToDate   string `json:"to_date" binding:"required"`
}

type CreateComplaintRequest struct {
	Category    string `json:"category" binding:"required"`
	Description string `json:"description" binding:"required"`
}
