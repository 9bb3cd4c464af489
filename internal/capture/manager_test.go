package capture

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/models"
	"github.com/your-org/hostelpass/internal/session"
	"github.com/your-org/hostelpass/internal/upstream"
	"github.com/your-org/hostelpass/internal/vision"
)

type mediaFactory struct {
	mu      sync.Mutex
	created []*fakeMedia
}

func (f *mediaFactory) New() Media {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &fakeMedia{frame: []byte("jpeg-frame")}
	f.created = append(f.created, m)
	return m
}

func newTestManager(t *testing.T, handler http.Handler, signedIn bool) (*Manager, *mediaFactory) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	if signedIn {
		require.NoError(t, store.SetAll(map[string]string{
			session.KeyToken:     "test-token",
			session.KeyStudentID: "stu-42",
		}))
	}

	cfg := &config.Config{}
	cfg.Vision.Mode = config.VisionModeClient
	cfg.Capture = testCaptureConfig()

	factory := &mediaFactory{}
	mgr := NewManager(Deps{
		Config:     cfg,
		Extractor:  &fakeExtractor{readiness: vision.Ready, descriptor: vision.Descriptor{0.5}},
		Locator:    &fakeLocator{fix: models.GeoFix{Latitude: 17.4, Longitude: 78.3}},
		Normalizer: &passNormalizer{},
		Upstream:   upstream.NewClient(config.UpstreamConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, store),
		Store:      store,
		NewMedia:   factory.New,
	})
	t.Cleanup(mgr.Cancel)
	return mgr, factory
}

func awaitManagerPhase(t *testing.T, mgr *Manager, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := mgr.Status()
		return err == nil && st.Phase == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManagerRequiresSignInForVerification(t *testing.T) {
	mgr, _ := newTestManager(t, http.NotFoundHandler(), false)

	_, err := mgr.Start(context.Background(), FlowVerify, "")
	assert.ErrorIs(t, err, ErrNotSignedIn)

	_, err = mgr.Status()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManagerEnrollmentRequiresRollNo(t *testing.T) {
	mgr, _ := newTestManager(t, http.NotFoundHandler(), false)

	_, err := mgr.Start(context.Background(), FlowEnroll, "")
	assert.Error(t, err)
}

func TestManagerReplacesActiveSession(t *testing.T) {
	mgr, factory := newTestManager(t, http.NotFoundHandler(), true)

	_, err := mgr.Start(context.Background(), FlowEnroll, "21BD1A0501")
	require.NoError(t, err)
	awaitManagerPhase(t, mgr, Capturing)

	_, err = mgr.Start(context.Background(), FlowVerify, "")
	require.NoError(t, err)

	factory.mu.Lock()
	defer factory.mu.Unlock()
	require.Len(t, factory.created, 2)
	_, _, closed := factory.created[0].counts()
	assert.Equal(t, 1, closed, "replaced session must release its camera")
	_, _, closed = factory.created[1].counts()
	assert.Zero(t, closed)
}

func TestManagerVerifyFlowMarksAttendance(t *testing.T) {
	var gotStudentID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/attendance/mark":
			require.NoError(t, r.ParseMultipartForm(32<<20))
			gotStudentID = r.FormValue("studentId")
			_ = json.NewEncoder(w).Encode(map[string]string{"studentName": "Asha Verma"})
		default:
			w.WriteHeader(http.StatusOK)
		}
	})

	mgr, _ := newTestManager(t, handler, true)

	_, err := mgr.Start(context.Background(), FlowVerify, "")
	require.NoError(t, err)
	awaitManagerPhase(t, mgr, Capturing)

	_, err = mgr.Capture()
	require.NoError(t, err)

	st, err := mgr.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Succeeded, st.Phase)
	assert.Equal(t, "Asha Verma", st.StudentName)
	assert.Equal(t, "stu-42", gotStudentID)
}

func TestManagerEnrollFlowRegistersFace(t *testing.T) {
	var gotRollNo string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/attendance/register-face":
			require.NoError(t, r.ParseMultipartForm(32<<20))
			gotRollNo = r.FormValue("rollNo")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})

	mgr, _ := newTestManager(t, handler, false)

	_, err := mgr.Start(context.Background(), FlowEnroll, "21BD1A0501")
	require.NoError(t, err)
	awaitManagerPhase(t, mgr, Capturing)

	_, err = mgr.Capture()
	require.NoError(t, err)

	st, err := mgr.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Succeeded, st.Phase)
	assert.Equal(t, "Face registered successfully!", st.Message)
	assert.Equal(t, "21BD1A0501", gotRollNo)
}
