package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/models"
	"github.com/your-org/hostelpass/internal/session"
	"github.com/your-org/hostelpass/internal/vision"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *session.FileStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)

	client := NewClient(config.UpstreamConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, store)
	return client, store
}

func TestMarkAttendanceSubmitsMultipart(t *testing.T) {
	descriptor := vision.Descriptor{0.1, -0.25, 0.5}

	var gotAuth string
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attendance/mark", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(32<<20))
		assert.Equal(t, "21BD1A0501", r.FormValue("studentId"))
		assert.Equal(t, "17.445", r.FormValue("latitude"))
		assert.Equal(t, "78.349", r.FormValue("longitude"))

		var sent []float32
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("faceDescriptor")), &sent))
		assert.Equal(t, []float32{0.1, -0.25, 0.5}, sent)

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "attendance.jpg", header.Filename)

		_ = json.NewEncoder(w).Encode(map[string]string{"studentName": "Asha"})
	}))

	require.NoError(t, store.Set(session.KeyToken, "tok-123"))

	result, err := client.MarkAttendance(context.Background(), MarkAttendanceInput{
		Image:      []byte{0xFF, 0xD8, 0xFF, 0xD9},
		StudentID:  "21BD1A0501",
		Fix:        models.GeoFix{Latitude: 17.445, Longitude: 78.349},
		Descriptor: descriptor,
	})

	require.NoError(t, err)
	assert.Equal(t, "Asha", result.StudentName)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestMarkAttendanceDuplicateIsWarningNotFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Attendance already marked for today"})
	}))

	_, err := client.MarkAttendance(context.Background(), MarkAttendanceInput{
		Image:     []byte{1},
		StudentID: "x",
	})

	assert.ErrorIs(t, err, ErrAlreadyMarked)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestMarkAttendanceOtherErrorIsNotDuplicate(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Face does not match"})
	}))

	_, err := client.MarkAttendance(context.Background(), MarkAttendanceInput{Image: []byte{1}})

	assert.NotErrorIs(t, err, ErrAlreadyMarked)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Face does not match", apiErr.Message)
}

func TestMarkAttendanceServerModeOmitsDescriptor(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		_, present := r.MultipartForm.Value["faceDescriptor"]
		assert.False(t, present, "server mode must not send a descriptor")
		_ = json.NewEncoder(w).Encode(map[string]string{"studentName": "Asha"})
	}))

	_, err := client.MarkAttendance(context.Background(), MarkAttendanceInput{
		Image:     []byte{1},
		StudentID: "x",
	})
	require.NoError(t, err)
}

func TestUnauthorizedClearsSession(t *testing.T) {
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	require.NoError(t, store.Set(session.KeyToken, "stale"))
	require.NoError(t, store.Set(session.KeyStudentID, "21BD1A0501"))

	_, err := client.GetStudent(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, store.Get(session.KeyToken))
	assert.Empty(t, store.Get(session.KeyStudentID))
}

func TestRegisterFace(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attendance/register-face", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		assert.Equal(t, "21BD1A0501", r.FormValue("rollNo"))
		assert.NotEmpty(t, r.FormValue("faceDescriptor"))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.RegisterFace(context.Background(), []byte{1, 2}, "21BD1A0501", vision.Descriptor{0.5})
	require.NoError(t, err)
}

func TestLoginPersistsSession(t *testing.T) {
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/student-auth/login", r.URL.Path)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "21BD1A0501", creds["rollNo"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"token":   "fresh-token",
			"student": map[string]any{
				"name":         "Asha Rao",
				"hostelId":     "H2",
				"isRegistered": true,
			},
		})
	}))

	result, err := client.Login(context.Background(), "21BD1A0501", "secret")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", result.Token)
	assert.Equal(t, "Asha Rao", result.Student.Name)

	assert.Equal(t, "fresh-token", store.Get(session.KeyToken))
	assert.Equal(t, "21BD1A0501", store.Get(session.KeyStudentID))
	assert.Equal(t, "H2", store.Get(session.KeyHostelID))
	assert.Equal(t, "true", store.Get(session.KeyRegistered))
}

func TestLoginRejected(t *testing.T) {
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Invalid credentials"})
	}))

	_, err := client.Login(context.Background(), "x", "y")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.Empty(t, store.Get(session.KeyToken))
}

func TestGetRegistrationDefaultsMissingFields(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/student/register/21BD1A0501", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{}) // no "hosteler" field at all
	}))

	student, err := client.GetRegistration(context.Background(), "21BD1A0501")
	require.NoError(t, err)
	assert.Equal(t, "21BD1A0501", student.RollNo)
	assert.False(t, student.IsRegistered)
}

func TestRequestsAndComplaints(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/requests/s1":
			_ = json.NewEncoder(w).Encode([]models.LeaveRequest{{ID: "r1", Status: "pending"}})
		case "/complaint/room":
			assert.Equal(t, "s1", r.URL.Query().Get("studentId"))
			_ = json.NewEncoder(w).Encode([]models.Complaint{{ID: "c1"}})
		case "/complaint/create":
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	requests, err := client.Requests(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "pending", requests[0].Status)

	complaints, err := client.RoomComplaints(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, complaints, 1)

	err = client.CreateComplaint(context.Background(), CreateComplaintInput{StudentID: "s1", Category: "plumbing"})
	require.NoError(t, err)
}

func TestExtractMessageFallbacks(t *testing.T) {
	assert.Equal(t, "boom", extractMessage([]byte(`{"message":"boom"}`)))
	assert.Equal(t, "bad", extractMessage([]byte(`{"error":"bad"}`)))
	assert.Equal(t, "plain text", extractMessage([]byte("plain text")))
	assert.Equal(t, "request failed", extractMessage(nil))
}
