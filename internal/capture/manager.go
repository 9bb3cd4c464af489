package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/models"
	"github.com/your-org/hostelpass/internal/session"
	"github.com/your-org/hostelpass/internal/upstream"
	"github.com/your-org/hostelpass/internal/vision"
)

// ErrNoSession is returned for session operations when nothing is active.
var ErrNoSession = errors.New("no active capture session")

// ErrNotSignedIn is returned when verification is requested without a
// signed-in student.
var ErrNotSignedIn = errors.New("not signed in")

// Deps are the device resources a Manager builds sessions from.
type Deps struct {
	Config     *config.Config
	Extractor  Extractor
	Locator    Locator
	Normalizer Normalizer
	Archiver   Archiver
	Upstream   *upstream.Client
	Store      session.Store

	// NewMedia acquires a fresh camera handle per session.
	NewMedia func() Media

	// OnUpdate and OnDetections fan session output to the display feed.
	OnUpdate     func(Status)
	OnDetections func([]vision.Detection)
}

// Manager owns at most one capture session at a time. Starting a new flow
// tears the previous session down first, so the camera handle is never
// held twice.
type Manager struct {
	deps Deps

	mu     sync.Mutex
	active *Session
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

// Start begins a new verification or enrollment session, replacing any
// session already on screen.
func (m *Manager) Start(ctx context.Context, flow Flow, rollNo string) (Status, error) {
	submitter, locator, err := m.flowWiring(flow, rollNo)
	if err != nil {
		return Status{}, err
	}

	sess := NewSession(Options{
		Flow:          flow,
		Media:         m.deps.NewMedia(),
		Extractor:     m.deps.Extractor,
		Locator:       locator,
		Normalizer:    m.deps.Normalizer,
		Submitter:     submitter,
		Archiver:      m.deps.Archiver,
		ClientExtract: m.deps.Config.Vision.Mode == config.VisionModeClient,
		Config:        m.deps.Config.Capture,
		OnUpdate:      m.deps.OnUpdate,
		OnDetections:  m.deps.OnDetections,
	})
	sess.opts.OnFinished = func() { m.finish(sess) }

	m.mu.Lock()
	previous := m.active
	m.active = sess
	m.mu.Unlock()

	if previous != nil {
		previous.Teardown()
	}

	slog.Info("capture session started", "flow", flow, "session_id", sess.ID())

	if err := sess.Start(ctx); err != nil {
		// Terminal status stays visible; the session is already dead.
		return sess.Status(), err
	}
	return sess.Status(), nil
}

func (m *Manager) flowWiring(flow Flow, rollNo string) (Submitter, Locator, error) {
	switch flow {
	case FlowVerify:
		if !session.SignedIn(m.deps.Store) {
			return nil, nil, ErrNotSignedIn
		}
		return &verifySubmitter{client: m.deps.Upstream, store: m.deps.Store}, m.deps.Locator, nil
	case FlowEnroll:
		if rollNo == "" {
			return nil, nil, errors.New("enrollment requires a roll number")
		}
		return &enrollSubmitter{client: m.deps.Upstream, rollNo: rollNo}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown flow %q", flow)
	}
}

// finish retires a session after its success dwell. A session that has
// already been replaced is left alone.
func (m *Manager) finish(sess *Session) {
	m.mu.Lock()
	if m.active == sess {
		m.active = nil
	}
	m.mu.Unlock()
	sess.Teardown()
}

// Cancel tears down the active session, if any.
func (m *Manager) Cancel() {
	m.mu.Lock()
	sess := m.active
	m.active = nil
	m.mu.Unlock()
	if sess != nil {
		sess.Teardown()
	}
}

func (m *Manager) current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoSession
	}
	return m.active, nil
}

func (m *Manager) Capture() (Status, error) {
	sess, err := m.current()
	if err != nil {
		return Status{}, err
	}
	if err := sess.Capture(); err != nil {
		return sess.Status(), err
	}
	return sess.Status(), nil
}

func (m *Manager) Retake() (Status, error) {
	sess, err := m.current()
	if err != nil {
		return Status{}, err
	}
	if err := sess.Retake(); err != nil {
		return sess.Status(), err
	}
	return sess.Status(), nil
}

func (m *Manager) Confirm(ctx context.Context) (Status, error) {
	sess, err := m.current()
	if err != nil {
		return Status{}, err
	}
	if err := sess.Confirm(ctx); err != nil {
		return sess.Status(), err
	}
	return sess.Status(), nil
}

func (m *Manager) Status() (Status, error) {
	sess, err := m.current()
	if err != nil {
		return Status{}, err
	}
	return sess.Status(), nil
}

// Frame returns the frame currently held for review.
func (m *Manager) Frame() ([]byte, error) {
	sess, err := m.current()
	if err != nil {
		return nil, err
	}
	frame, ok := sess.Frame()
	if !ok {
		return nil, errors.New("no frame held")
	}
	return frame, nil
}

// verifySubmitter marks attendance for the signed-in student.
type verifySubmitter struct {
	client *upstream.Client
	store  session.Store
}

func (s *verifySubmitter) Submit(ctx context.Context, image []byte, descriptor vision.Descriptor, fix *models.GeoFix) (string, error) {
	if fix == nil {
		return "", errors.New("no location fix")
	}
	result, err := s.client.MarkAttendance(ctx, upstream.MarkAttendanceInput{
		Image:      image,
		StudentID:  s.store.Get(session.KeyStudentID),
		Fix:        *fix,
		Descriptor: descriptor,
	})
	if err != nil {
		return "", err
	}
	s.client.AddLog(ctx, "attendance_marked", result.StudentName)
	return result.StudentName, nil
}

// enrollSubmitter registers a reference face for a roll number.
type enrollSubmitter struct {
	client *upstream.Client
	rollNo string
}

func (s *enrollSubmitter) Submit(ctx context.Context, image []byte, descriptor vision.Descriptor, _ *models.GeoFix) (string, error) {
	if err := s.client.RegisterFace(ctx, image, s.rollNo, descriptor); err != nil {
		return "", err
	}
	s.client.AddLog(ctx, "face_registered", s.rollNo)
	return s.rollNo, nil
}
