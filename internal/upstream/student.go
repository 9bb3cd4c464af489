package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/your-org/hostelpass/internal/models"
	"github.com/your-org/hostelpass/internal/session"
)

// LoginResult is the validated shape of a successful login.
type LoginResult struct {
	Token   string
	Student models.Student
}

type loginResponse struct {
	Success bool            `json:"success"`
	Token   string          `json:"token"`
	Message string          `json:"message"`
	Student *models.Student `json:"student"`
}

// Login authenticates a student and persists the session fields the device
// keeps between restarts (token, roll number, name, hostel, enrollment flag).
func (c *Client) Login(ctx context.Context, rollNo, password string) (*LoginResult, error) {
	var resp loginResponse
	err := c.postJSON(ctx, "/student-auth/login", map[string]string{
		"rollNo":   rollNo,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if !resp.Success || resp.Token == "" {
		msg := resp.Message
		if msg == "" {
			msg = "invalid credentials"
		}
		return nil, &APIError{Status: 401, Message: msg}
	}

	result := &LoginResult{Token: resp.Token}
	if resp.Student != nil {
		result.Student = *resp.Student
	}
	result.Student.RollNo = rollNo

	err = c.store.SetAll(map[string]string{
		session.KeyToken:       resp.Token,
		session.KeyStudentID:   rollNo,
		session.KeyStudentName: result.Student.Name,
		session.KeyHostelID:    result.Student.HostelID,
		session.KeyRegistered:  strconv.FormatBool(result.Student.IsRegistered),
	})
	if err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	return result, nil
}

// RegisterStudentInput is the new-student signup payload.
type RegisterStudentInput struct {
	RollNo   string `json:"rollNo"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	HostelID string `json:"hostelId"`
	RoomNo   string `json:"roomNo"`
}

func (c *Client) RegisterStudent(ctx context.Context, in RegisterStudentInput) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.postJSON(ctx, "/student-auth/register-student", in, &resp); err != nil {
		return err
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "registration failed"
		}
		return &APIError{Status: 400, Message: msg}
	}
	return nil
}

// GetStudent fetches a student profile by upstream id.
func (c *Client) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := c.getJSON(ctx, "/student/"+url.PathEscape(id), &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// GetRegistration looks up enrollment state for a roll number. Missing
// fields default to "not registered" rather than being trusted blindly.
func (c *Client) GetRegistration(ctx context.Context, rollNo string) (*models.Student, error) {
	var resp struct {
		Hosteler *models.Student `json:"hosteler"`
	}
	if err := c.getJSON(ctx, "/student/register/"+url.PathEscape(rollNo), &resp); err != nil {
		return nil, err
	}
	if resp.Hosteler == nil {
		return &models.Student{RollNo: rollNo}, nil
	}
	return resp.Hosteler, nil
}

// Incharges lists hostel staff for a hostel.
func (c *Client) Incharges(ctx context.Context, hostelID string) ([]models.Incharge, error) {
	var incharges []models.Incharge
	if err := c.getJSON(ctx, "/incharge/getIncharges/"+url.PathEscape(hostelID), &incharges); err != nil {
		return nil, err
	}
	return incharges, nil
}

// Roomies lists a student's roommates.
func (c *Client) Roomies(ctx context.Context, studentID string) ([]models.Roomie, error) {
	var roomies []models.Roomie
	err := c.postJSON(ctx, "/student/getRoomies", map[string]string{"studentId": studentID}, &roomies)
	if err != nil {
		return nil, err
	}
	return roomies, nil
}
