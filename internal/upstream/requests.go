package upstream

import (
	"context"
	"net/url"

	"github.com/your-org/hostelpass/internal/models"
)

// Requests lists a student's leave/permission requests, newest first as the
// upstream returns them.
func (c *Client) Requests(ctx context.Context, studentID string) ([]models.LeaveRequest, error) {
	var requests []models.LeaveRequest
	if err := c.getJSON(ctx, "/requests/"+url.PathEscape(studentID), &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// CreateRequestInput is a new leave/permission request.
type CreateRequestInput struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`
}

// CreateRequest files a new request and updates the student's latest-request
// pointer upstream.
func (c *Client) CreateRequest(ctx context.Context, studentID string, in CreateRequestInput) (*models.LeaveRequest, error) {
	var created models.LeaveRequest
	err := c.postJSON(ctx, "/student/createRequestAndUpdate/"+url.PathEscape(studentID), in, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// RoomComplaints lists complaints filed for the student's room.
func (c *Client) RoomComplaints(ctx context.Context, studentID string) ([]models.Complaint, error) {
	var complaints []models.Complaint
	path := "/complaint/room?studentId=" + url.QueryEscape(studentID)
	if err := c.getJSON(ctx, path, &complaints); err != nil {
		return nil, err
	}
	return complaints, nil
}

// CreateComplaintInput is a new room complaint.
type CreateComplaintInput struct {
	StudentID   string `json:"studentId"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (c *Client) CreateComplaint(ctx context.Context, in CreateComplaintInput) error {
	return c.postJSON(ctx, "/complaint/create", in, nil)
}
