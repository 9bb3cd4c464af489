package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/models"
	"github.com/your-org/hostelpass/internal/upstream"
	"github.com/your-org/hostelpass/internal/vision"
)

type fakeMedia struct {
	mu         sync.Mutex
	openCalls  int
	closeCalls int
	capCalls   int
	openErr    error
	capErr     error
	frame      []byte
}

func (m *fakeMedia) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	return m.openErr
}

func (m *fakeMedia) Capture() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capCalls++
	if m.capErr != nil {
		return nil, m.capErr
	}
	return m.frame, nil
}

func (m *fakeMedia) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
}

func (m *fakeMedia) counts() (open, capture, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls, m.capCalls, m.closeCalls
}

type fakeExtractor struct {
	readiness  vision.Readiness
	loadErr    error
	descriptor vision.Descriptor
	extractErr error
	extracted  int
}

func (e *fakeExtractor) Readiness() (vision.Readiness, error) {
	return e.readiness, e.loadErr
}

func (e *fakeExtractor) ExtractFromJPEG(data []byte) (vision.Descriptor, vision.Detection, error) {
	e.extracted++
	if e.extractErr != nil {
		return nil, vision.Detection{}, e.extractErr
	}
	return e.descriptor, vision.Detection{Confidence: 0.9}, nil
}

func (e *fakeExtractor) DetectFromJPEG(data []byte) ([]vision.Detection, error) {
	return nil, nil
}

type fakeLocator struct {
	mu    sync.Mutex
	calls int
	fix   models.GeoFix
	err   error
}

func (l *fakeLocator) Acquire(ctx context.Context) (models.GeoFix, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.fix, l.err
}

type passNormalizer struct{ calls int }

func (n *passNormalizer) Normalize(frame []byte) ([]byte, error) {
	n.calls++
	return frame, nil
}

type fakeSubmitter struct {
	mu         sync.Mutex
	calls      int
	name       string
	err        error
	delay      time.Duration
	gotImage   []byte
	gotDesc    vision.Descriptor
	gotFix     *models.GeoFix
}

func (f *fakeSubmitter) Submit(ctx context.Context, image []byte, descriptor vision.Descriptor, fix *models.GeoFix) (string, error) {
	f.mu.Lock()
	f.calls++
	f.gotImage = image
	f.gotDesc = descriptor
	f.gotFix = fix
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.name, f.err
}

type statusRecorder struct {
	mu      sync.Mutex
	updates []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, s)
}

func (r *statusRecorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.Phase
	}
	return out
}

func testCaptureConfig() config.CaptureConfig {
	return config.CaptureConfig{
		MaxImageWidth: 640,
		JPEGQuality:   80,
		SuccessDwell:  10 * time.Millisecond,
		SubmitTimeout: time.Second,
	}
}

func newTestSession(t *testing.T, mutate func(*Options)) (*Session, *fakeMedia, *fakeSubmitter, *statusRecorder) {
	t.Helper()

	media := &fakeMedia{frame: []byte("jpeg-frame")}
	submitter := &fakeSubmitter{name: "Asha Verma"}
	recorder := &statusRecorder{}

	opts := Options{
		Flow:          FlowVerify,
		Media:         media,
		Extractor:     &fakeExtractor{readiness: vision.Ready, descriptor: vision.Descriptor{0.1, 0.2}},
		Locator:       &fakeLocator{fix: models.GeoFix{Latitude: 12.97, Longitude: 77.59}},
		Normalizer:    &passNormalizer{},
		Submitter:     submitter,
		ClientExtract: true,
		Config:        testCaptureConfig(),
		OnUpdate:      recorder.record,
	}
	if mutate != nil {
		mutate(&opts)
	}

	sess := NewSession(opts)
	t.Cleanup(sess.Teardown)
	return sess, media, submitter, recorder
}

func awaitPhase(t *testing.T, sess *Session, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sess.Status().Phase == want
	}, 2*time.Second, 5*time.Millisecond, "session never reached %s", want)
}

func TestSessionArmsAndCaptures(t *testing.T) {
	sess, _, _, _ := newTestSession(t, nil)

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)

	st := sess.Status()
	assert.True(t, st.HasFix)
	assert.False(t, st.HasFrame)

	require.NoError(t, sess.Capture())
	st = sess.Status()
	assert.Equal(t, Reviewing, st.Phase)
	assert.True(t, st.HasFrame)
}

func TestCameraDenialIsTerminal(t *testing.T) {
	sess, media, _, _ := newTestSession(t, func(o *Options) {
		o.Media = &fakeMedia{openErr: errors.New("permission denied")}
	})
	_ = media

	require.Error(t, sess.Start(context.Background()))

	st := sess.Status()
	assert.Equal(t, Failed, st.Phase)
	assert.Equal(t, KindCameraDenied, st.Kind)
	assert.Equal(t, CategoryError, st.Category)
	assert.True(t, st.Terminal)

	assert.ErrorIs(t, sess.Capture(), ErrWrongPhase)
}

func TestModelLoadFailureIsTerminal(t *testing.T) {
	sess, _, _, _ := newTestSession(t, func(o *Options) {
		o.Extractor = &fakeExtractor{readiness: vision.Failed, loadErr: errors.New("bad model file")}
	})

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Failed)

	st := sess.Status()
	assert.Equal(t, KindModelLoad, st.Kind)
	assert.True(t, st.Terminal)
}

func TestLocationDenialWaitsForever(t *testing.T) {
	locator := &fakeLocator{err: errors.New("denied by user")}
	sess, _, _, _ := newTestSession(t, func(o *Options) {
		o.Locator = locator
	})

	require.NoError(t, sess.Start(context.Background()))

	require.Eventually(t, func() bool {
		return sess.Status().Kind == KindLocationDenied
	}, 2*time.Second, 5*time.Millisecond)

	st := sess.Status()
	assert.Equal(t, Idle, st.Phase)
	assert.Equal(t, CategoryError, st.Category)
	assert.False(t, st.Terminal)

	// Nothing retries and capture stays disabled.
	time.Sleep(50 * time.Millisecond)
	locator.mu.Lock()
	calls := locator.calls
	locator.mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, sess.Capture(), ErrWrongPhase)
}

func TestConfirmSuccess(t *testing.T) {
	finished := make(chan struct{})
	sess, _, submitter, _ := newTestSession(t, func(o *Options) {
		o.OnFinished = func() { close(finished) }
	})

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)
	require.NoError(t, sess.Capture())
	require.NoError(t, sess.Confirm(context.Background()))

	st := sess.Status()
	assert.Equal(t, Succeeded, st.Phase)
	assert.Equal(t, CategorySuccess, st.Category)
	assert.Equal(t, "Verified: Asha Verma", st.Message)
	assert.True(t, st.Terminal)

	submitter.mu.Lock()
	assert.Equal(t, []byte("jpeg-frame"), submitter.gotImage)
	assert.Equal(t, vision.Descriptor{0.1, 0.2}, submitter.gotDesc)
	require.NotNil(t, submitter.gotFix)
	assert.InDelta(t, 12.97, submitter.gotFix.Latitude, 1e-9)
	submitter.mu.Unlock()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("success dwell never fired")
	}
}

func TestEnrollmentSuccessMessage(t *testing.T) {
	sess, _, _, _ := newTestSession(t, func(o *Options) {
		o.Flow = FlowEnroll
		o.Locator = nil
	})

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)
	require.NoError(t, sess.Capture())
	require.NoError(t, sess.Confirm(context.Background()))

	st := sess.Status()
	assert.Equal(t, Succeeded, st.Phase)
	assert.Equal(t, "Face registered successfully!", st.Message)
	assert.False(t, st.HasFix)
}

func TestNoFaceIsNeverAFailure(t *testing.T) {
	sess, _, submitter, recorder := newTestSession(t, func(o *Options) {
		o.Extractor = &fakeExtractor{readiness: vision.Ready, extractErr: vision.ErrNoFace}
	})

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)
	require.NoError(t, sess.Capture())
	require.NoError(t, sess.Confirm(context.Background()))

	st := sess.Status()
	assert.Equal(t, Reviewing, st.Phase)
	assert.Equal(t, KindNoFace, st.Kind)
	assert.Equal(t, CategoryWarning, st.Category)
	assert.True(t, st.HasFrame, "frame must survive a no-face outcome")

	for _, phase := range recorder.phases() {
		assert.NotEqual(t, Failed, phase)
	}
	submitter.mu.Lock()
	assert.Zero(t, submitter.calls, "nothing leaves the device without a face")
	submitter.mu.Unlock()
}

func TestDuplicateIsAWarning(t *testing.T) {
	sess, _, _, recorder := newTestSession(t, func(o *Options) {
		o.Submitter = &fakeSubmitter{err: fmt.Errorf("%w: %w", upstream.ErrAlreadyMarked,
			&upstream.APIError{Status: 400, Message: "Attendance already marked for today"})}
	})

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)
	require.NoError(t, sess.Capture())
	require.NoError(t, sess.Confirm(context.Background()))

	st := sess.Status()
	assert.Equal(t, Reviewing, st.Phase)
	assert.Equal(t, KindDuplicate, st.Kind)
	assert.Equal(t, CategoryWarning, st.Category)
	assert.Contains(t, st.Message, "already marked")

	for _, phase := range recorder.phases() {
		assert.NotEqual(t, Succeeded, phase)
	}
}

func TestNetworkFailureDiscardsFrame(t *testing.T) {
	sess, _, _, _ := newTestSession(t, func(o *Options) {
		o.Submitter = &fakeSubmitter{err: &upstream.APIError{Status: 502, Message: "upstream unavailable"}}
	})

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)
	require.NoError(t, sess.Capture())
	require.Error(t, sess.Confirm(context.Background()))

	st := sess.Status()
	assert.Equal(t, Capturing, st.Phase, "manual retry must recapture")
	assert.Equal(t, KindNetwork, st.Kind)
	assert.Equal(t, CategoryError, st.Category)
	assert.False(t, st.HasFrame)
	assert.Contains(t, st.Message, "upstream unavailable")
}

func TestUnauthorizedIsTerminal(t *testing.T) {
	sess, _, _, _ := newTestSession(t, func(o *Options) {
		o.Submitter = &fakeSubmitter{err: upstream.ErrUnauthorized}
	})

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)
	require.NoError(t, sess.Capture())
	require.Error(t, sess.Confirm(context.Background()))

	st := sess.Status()
	assert.Equal(t, Failed, st.Phase)
	assert.Equal(t, KindUnauthorized, st.Kind)
	assert.True(t, st.Terminal)
	assert.ErrorIs(t, sess.Capture(), ErrWrongPhase)
}

func TestConfirmRejectsConcurrentSubmission(t *testing.T) {
	sess, _, submitter, _ := newTestSession(t, func(o *Options) {
		o.Submitter = &fakeSubmitter{name: "Asha Verma", delay: 100 * time.Millisecond}
	})
	submitter = sess.opts.Submitter.(*fakeSubmitter)

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)
	require.NoError(t, sess.Capture())

	first := make(chan error, 1)
	go func() { first <- sess.Confirm(context.Background()) }()

	require.Eventually(t, func() bool {
		submitter.mu.Lock()
		defer submitter.mu.Unlock()
		return submitter.calls == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, sess.Confirm(context.Background()), ErrBusy)
	require.NoError(t, <-first)

	submitter.mu.Lock()
	assert.Equal(t, 1, submitter.calls)
	submitter.mu.Unlock()
}

func TestTeardownDropsLateSubmissionResult(t *testing.T) {
	finished := make(chan struct{}, 1)
	sess, _, submitter, recorder := newTestSession(t, func(o *Options) {
		o.Submitter = &fakeSubmitter{name: "Asha Verma", delay: 100 * time.Millisecond}
		o.OnFinished = func() { finished <- struct{}{} }
	})
	submitter = sess.opts.Submitter.(*fakeSubmitter)

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)
	require.NoError(t, sess.Capture())

	done := make(chan error, 1)
	go func() { done <- sess.Confirm(context.Background()) }()

	require.Eventually(t, func() bool {
		submitter.mu.Lock()
		defer submitter.mu.Unlock()
		return submitter.calls == 1
	}, 2*time.Second, 5*time.Millisecond)

	sess.Teardown()
	recorder.mu.Lock()
	recorderBefore := len(recorder.updates)
	recorder.mu.Unlock()

	require.NoError(t, <-done)

	// The submission resolved after teardown: the dead session must not
	// change state, emit, or schedule the success dwell.
	st := sess.Status()
	assert.NotEqual(t, Succeeded, st.Phase)
	assert.False(t, st.Terminal)
	assert.Empty(t, st.StudentName)

	recorder.mu.Lock()
	assert.Equal(t, recorderBefore, len(recorder.updates), "no updates after teardown")
	recorder.mu.Unlock()

	select {
	case <-finished:
		t.Fatal("success dwell fired on a torn-down session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRetakeReusesTheDevice(t *testing.T) {
	sess, media, _, _ := newTestSession(t, nil)

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)

	for i := 0; i < 2; i++ {
		require.NoError(t, sess.Capture())
		require.NoError(t, sess.Retake())
		assert.False(t, sess.Status().HasFrame)
	}
	require.NoError(t, sess.Capture())

	open, capture, _ := media.counts()
	assert.Equal(t, 1, open, "retakes never reacquire the camera")
	assert.Equal(t, 3, capture)

	sess.Teardown()
	sess.Teardown()
	_, _, closed := media.counts()
	assert.Equal(t, 1, closed, "teardown closes the camera exactly once")
}

func TestServerModeSkipsLocalExtraction(t *testing.T) {
	extractor := &fakeExtractor{readiness: vision.Loading}
	sess, _, submitter, _ := newTestSession(t, func(o *Options) {
		o.ClientExtract = false
		o.Extractor = extractor
	})

	require.NoError(t, sess.Start(context.Background()))
	awaitPhase(t, sess, Capturing)
	require.NoError(t, sess.Capture())
	require.NoError(t, sess.Confirm(context.Background()))

	assert.Zero(t, extractor.extracted)
	submitter.mu.Lock()
	assert.Nil(t, submitter.gotDesc, "server mode sends no descriptor")
	submitter.mu.Unlock()
	assert.Equal(t, Succeeded, sess.Status().Phase)
}
