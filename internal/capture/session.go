package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/models"
	"github.com/your-org/hostelpass/internal/observability"
	"github.com/your-org/hostelpass/internal/upstream"
	"github.com/your-org/hostelpass/internal/vision"
)

// ErrBusy is returned when Confirm is called while a submission is already
// in flight. At most one submission runs per session.
var ErrBusy = errors.New("submission already in flight")

// ErrWrongPhase is returned for operations invoked outside their phase.
var ErrWrongPhase = errors.New("operation not valid in current phase")

// Media is the camera resource owned by the session.
type Media interface {
	Open(ctx context.Context) error
	Capture() ([]byte, error)
	Close()
}

// Extractor is the loaded face model unit.
type Extractor interface {
	Readiness() (vision.Readiness, error)
	ExtractFromJPEG(data []byte) (vision.Descriptor, vision.Detection, error)
	DetectFromJPEG(data []byte) ([]vision.Detection, error)
}

// Locator produces the one-shot location fix (verification only).
type Locator interface {
	Acquire(ctx context.Context) (models.GeoFix, error)
}

// Normalizer bounds and re-encodes captured frames before submission.
type Normalizer interface {
	Normalize(frame []byte) ([]byte, error)
}

// Submitter performs the single outbound network call for a confirmed
// frame and returns a display name for the success banner.
type Submitter interface {
	Submit(ctx context.Context, image []byte, descriptor vision.Descriptor, fix *models.GeoFix) (string, error)
}

// Archiver optionally stores submitted frames for audit. Failures are
// logged and dropped.
type Archiver interface {
	Archive(ctx context.Context, flow string, image []byte) error
}

// Options wires a session. Locator is nil for enrollment; Archiver and the
// observer callbacks are optional.
type Options struct {
	Flow          Flow
	Media         Media
	Extractor     Extractor
	Locator       Locator
	Normalizer    Normalizer
	Submitter     Submitter
	Archiver      Archiver
	ClientExtract bool
	Config        config.CaptureConfig

	// OnUpdate receives every status transition.
	OnUpdate func(Status)
	// OnDetections receives live overlay boxes at the configured interval.
	OnDetections func([]vision.Detection)
	// OnFinished fires once after the success dwell elapses.
	OnFinished func()
}

// Session is one enrollment or verification attempt. All exported methods
// are safe for concurrent use; long operations run without holding the
// state lock so the session stays observable while extracting/submitting.
type Session struct {
	id   uuid.UUID
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	phase       Phase
	frame       []byte
	fix         *models.GeoFix
	busy        bool
	closed      bool
	terminal    bool
	message     string
	category    Category
	kind        ErrorKind
	studentName string
	dwellTimer  *time.Timer
}

func NewSession(opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       uuid.New(),
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		phase:    Idle,
		category: CategoryInfo,
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Start opens the camera and begins arming the session. It returns an error
// only for the terminal camera-denied case; model readiness and location
// are awaited in the background, and the session moves to Capturing once
// every precondition holds.
func (s *Session) Start(ctx context.Context) error {
	s.setStatus(Idle, "Preparing camera...", CategoryInfo, KindNone)

	if err := s.opts.Media.Open(ctx); err != nil {
		s.failTerminal(KindCameraDenied, "Camera access denied. Grant camera permission and restart.")
		return fmt.Errorf("open camera: %w", err)
	}

	go s.arm()

	if s.opts.OnDetections != nil && s.opts.ClientExtract && s.opts.Config.OverlayInterval > 0 {
		go s.overlayLoop()
	}

	return nil
}

// arm waits for the model unit (client extraction only) and the location fix
// (verification only), then unlocks capture. A location denial leaves the
// session waiting forever: submission stays disabled and nothing polls.
func (s *Session) arm() {
	if s.opts.ClientExtract {
		for {
			state, err := s.opts.Extractor.Readiness()
			if state == vision.Failed {
				slog.Error("face models failed to load", "error", err)
				s.failTerminal(KindModelLoad, "Error loading face models. Restart the kiosk.")
				return
			}
			if state == vision.Ready {
				break
			}
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	if s.opts.Locator != nil {
		s.setStatus(Idle, "Waiting for location...", CategoryInfo, KindNone)

		fix, err := s.opts.Locator.Acquire(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			slog.Warn("location unavailable", "error", err)
			s.setStatus(Idle, "Location access denied.", CategoryError, KindLocationDenied)
			return
		}

		s.mu.Lock()
		s.fix = &fix
		s.mu.Unlock()
	}

	s.setStatus(Capturing, "Ready. Position your face in the frame.", CategoryInfo, KindNone)
}

// Capture takes a still frame and holds it for review. Repeatable without
// reacquiring the device.
func (s *Session) Capture() error {
	s.mu.Lock()
	if s.closed || s.phase != Capturing {
		s.mu.Unlock()
		return fmt.Errorf("%w: capture in %s", ErrWrongPhase, s.phase)
	}
	s.mu.Unlock()

	frame, err := s.opts.Media.Capture()
	if err != nil {
		s.setStatus(Capturing, "Camera is warming up, try again.", CategoryInfo, KindNone)
		return fmt.Errorf("capture frame: %w", err)
	}

	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
	s.setStatus(Reviewing, "Review your photo. Ensure your face is clear.", CategoryInfo, KindNone)
	return nil
}

// Retake discards the held frame and returns to Capturing. No side effects
// beyond dropping state.
func (s *Session) Retake() error {
	s.mu.Lock()
	if s.closed || s.phase != Reviewing {
		s.mu.Unlock()
		return fmt.Errorf("%w: retake in %s", ErrWrongPhase, s.phase)
	}
	s.frame = nil
	s.mu.Unlock()

	s.setStatus(Capturing, "Ready. Position your face in the frame.", CategoryInfo, KindNone)
	return nil
}

// Confirm runs the held frame through normalize → extract → submit. It
// blocks until the attempt resolves; rapid repeated calls are rejected with
// ErrBusy so at most one submission is ever in flight.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.phase != Reviewing {
		s.mu.Unlock()
		return fmt.Errorf("%w: confirm in %s", ErrWrongPhase, s.phase)
	}
	s.busy = true
	frame := s.frame
	var fix *models.GeoFix
	if s.fix != nil {
		f := *s.fix
		fix = &f
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	s.setStatus(Extracting, "Verifying identity...", CategoryInfo, KindNone)

	normalized, err := s.opts.Normalizer.Normalize(frame)
	if err != nil {
		s.outcomeFailed(KindInternal, "Could not process the captured photo.", true)
		return fmt.Errorf("normalize frame: %w", err)
	}

	var descriptor vision.Descriptor
	if s.opts.ClientExtract {
		descriptor, _, err = s.opts.Extractor.ExtractFromJPEG(normalized)
		if errors.Is(err, vision.ErrNoFace) {
			observability.NoFaceOutcomes.Inc()
			s.outcomeRecoverable(KindNoFace, "Face not detected clearly. Try again.")
			return nil
		}
		if err != nil {
			s.outcomeFailed(KindInternal, "Face processing failed.", true)
			return fmt.Errorf("extract descriptor: %w", err)
		}
	}

	s.setStatus(Submitting, "Submitting...", CategoryInfo, KindNone)

	subCtx := ctx
	if s.opts.Config.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, s.opts.Config.SubmitTimeout)
		defer cancel()
	}

	name, err := s.opts.Submitter.Submit(subCtx, normalized, descriptor, fix)
	switch {
	case errors.Is(err, upstream.ErrAlreadyMarked):
		observability.Submissions.WithLabelValues(string(s.opts.Flow), "duplicate").Inc()
		s.outcomeRecoverable(KindDuplicate, upstreamMessage(err, "Attendance already marked."))
		return nil

	case errors.Is(err, upstream.ErrUnauthorized):
		observability.Submissions.WithLabelValues(string(s.opts.Flow), "unauthorized").Inc()
		s.failTerminal(KindUnauthorized, "Session expired. Please sign in again.")
		return err

	case err != nil:
		observability.Submissions.WithLabelValues(string(s.opts.Flow), "error").Inc()
		s.outcomeFailed(KindNetwork, "Failed: "+upstreamMessage(err, "verification failed"), true)
		return err
	}

	observability.Submissions.WithLabelValues(string(s.opts.Flow), "success").Inc()
	s.archive(normalized)
	s.succeed(name)
	return nil
}

func (s *Session) succeed(name string) {
	message := "Face registered successfully!"
	if s.opts.Flow == FlowVerify {
		message = "Verified: " + name
	}

	s.mu.Lock()
	if s.closed {
		// The session was torn down while submitting; drop the late result.
		s.mu.Unlock()
		return
	}
	s.phase = Succeeded
	s.terminal = true
	s.message = message
	s.category = CategorySuccess
	s.kind = KindNone
	s.studentName = name
	if s.opts.OnFinished != nil {
		dwell := s.opts.Config.SuccessDwell
		s.dwellTimer = time.AfterFunc(dwell, s.opts.OnFinished)
	}
	s.mu.Unlock()
	s.emit()
}

// outcomeRecoverable publishes a warning outcome and returns the session to
// Reviewing: the frame is kept so the user can retake or try again, and
// nothing retries automatically.
func (s *Session) outcomeRecoverable(kind ErrorKind, message string) {
	s.setStatus(Recoverable, message, CategoryWarning, kind)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.phase = Reviewing
	s.mu.Unlock()
	s.emit()
}

// outcomeFailed publishes an error outcome. The held frame is discarded, so
// a manual retry must recapture.
func (s *Session) outcomeFailed(kind ErrorKind, message string, resume bool) {
	s.setStatus(Failed, message, CategoryError, kind)
	if !resume {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.frame = nil
	s.phase = Capturing
	s.mu.Unlock()
	s.emit()
}

// failTerminal marks the session dead: capture and submission stay disabled
// until the session is torn down.
func (s *Session) failTerminal(kind ErrorKind, message string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.phase = Failed
	s.terminal = true
	s.message = message
	s.category = CategoryError
	s.kind = kind
	s.frame = nil
	s.mu.Unlock()
	s.emit()
}

func (s *Session) archive(image []byte) {
	if s.opts.Archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.opts.Archiver.Archive(ctx, string(s.opts.Flow), image); err != nil {
			slog.Warn("archive snapshot", "error", err)
		}
	}()
}

// overlayLoop periodically runs detection against the live frame and pushes
// boxes to the observer. It is bound to the session lifetime and stops on
// teardown; results arriving after teardown are dropped with it.
func (s *Session) overlayLoop() {
	ticker := time.NewTicker(s.opts.Config.OverlayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			frame, err := s.opts.Media.Capture()
			if err != nil {
				continue
			}
			detections, err := s.opts.Extractor.DetectFromJPEG(frame)
			if err != nil {
				continue
			}
			if s.ctx.Err() == nil {
				s.opts.OnDetections(detections)
			}
		}
	}
}

// Teardown releases everything the session owns: the background context
// (overlay ticker, pending arming), the success dwell timer and the camera.
// It is idempotent and must run on every exit path.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.dwellTimer != nil {
		s.dwellTimer.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	s.opts.Media.Close()
}

// Status returns a snapshot of the visible session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	return Status{
		SessionID:   s.id,
		Flow:        s.opts.Flow,
		Phase:       s.phase,
		PhaseName:   s.phase.String(),
		Message:     s.message,
		Category:    s.category,
		Kind:        s.kind,
		KindName:    s.kind.String(),
		HasFrame:    s.frame != nil,
		HasFix:      s.fix != nil,
		StudentName: s.studentName,
		Terminal:    s.terminal,
	}
}

// Frame returns a copy of the held review frame, if any.
func (s *Session) Frame() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	frame := make([]byte, len(s.frame))
	copy(frame, s.frame)
	return frame, true
}

func (s *Session) setStatus(phase Phase, message string, category Category, kind ErrorKind) {
	s.mu.Lock()
	if s.closed || s.terminal {
		s.mu.Unlock()
		return
	}
	s.phase = phase
	s.message = message
	s.category = category
	s.kind = kind
	s.mu.Unlock()
	s.emit()
}

func (s *Session) emit() {
	if s.opts.OnUpdate == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	snapshot := s.statusLocked()
	s.mu.Unlock()
	s.opts.OnUpdate(snapshot)
}

// upstreamMessage extracts the upstream display message from a wrapped
// error, falling back when there is none.
func upstreamMessage(err error, fallback string) string {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err != nil {
		if msg := err.Error(); msg != "" && len(msg) < 200 {
			return msg
		}
	}
	return fallback
}
