package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/observability"
)

// ErrNoFace is returned when a confirmed frame contains no detectable face.
// It is an expected outcome, not a failure; callers route it back to capture.
var ErrNoFace = errors.New("no face detected")

// ErrNotReady is returned when extraction is attempted before all models
// finished loading, or after loading failed.
var ErrNotReady = errors.New("face models not ready")

// Readiness is the loader state of the engine. Partial readiness is never
// exposed: either all three models are available or the engine is Failed.
type Readiness int

const (
	Loading Readiness = iota
	Ready
	Failed
)

func (r Readiness) String() string {
	switch r {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Engine bundles the face-area detector, the landmark refiner and the
// descriptor embedder into one loadable unit.
type Engine struct {
	mu      sync.RWMutex
	state   Readiness
	loadErr error

	// infMu serializes inference: each session owns fixed input/output
	// tensor buffers.
	infMu     sync.Mutex
	detector  *Detector
	landmarks *LandmarkRefiner
	embedder  *Embedder

	cfg config.VisionConfig
}

// NewEngine returns an engine in the Loading state. Call Load to initialize.
func NewEngine(cfg config.VisionConfig) *Engine {
	return &Engine{state: Loading, cfg: cfg}
}

// Load initializes all three ONNX sessions as a single unit. It blocks until
// loading finishes or ctx expires; either way the engine ends in Ready or
// Failed and never moves again. There is no automatic retry: the only remedy
// for Failed is a process restart.
func (e *Engine) Load(ctx context.Context) error {
	type loaded struct {
		det *Detector
		lm  *LandmarkRefiner
		emb *Embedder
		err error
	}

	result := make(chan loaded, 1)
	go func() {
		det, lm, emb, err := loadModels(e.cfg)
		result <- loaded{det, lm, emb, err}
	}()

	select {
	case r := <-result:
		e.mu.Lock()
		defer e.mu.Unlock()
		if r.err != nil {
			e.state = Failed
			e.loadErr = r.err
			observability.ModelReadiness.Set(0)
			return r.err
		}
		e.detector = r.det
		e.landmarks = r.lm
		e.embedder = r.emb
		e.state = Ready
		observability.ModelReadiness.Set(1)
		slog.Info("face models loaded", "models_dir", e.cfg.ModelsDir)
		return nil

	case <-ctx.Done():
		e.mu.Lock()
		e.state = Failed
		e.loadErr = fmt.Errorf("model load: %w", ctx.Err())
		e.mu.Unlock()
		observability.ModelReadiness.Set(0)

		// Release whatever the loader produces after the deadline.
		go func() {
			r := <-result
			if r.err == nil {
				r.det.Close()
				r.lm.Close()
				r.emb.Close()
			}
		}()
		return ctx.Err()
	}
}

func loadModels(cfg config.VisionConfig) (*Detector, *LandmarkRefiner, *Embedder, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	lmPath := filepath.Join(cfg.ModelsDir, "2d106det.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading landmark model", "path", lmPath)
	lm, err := NewLandmarkRefiner(lmPath)
	if err != nil {
		det.Close()
		return nil, nil, nil, fmt.Errorf("load landmarks: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath)
	if err != nil {
		det.Close()
		lm.Close()
		return nil, nil, nil, fmt.Errorf("load embedder: %w", err)
	}

	return det, lm, emb, nil
}

// Readiness reports the loader state and, when Failed, the terminal error.
func (e *Engine) Readiness() (Readiness, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.loadErr
}

// ExtractFromJPEG detects the best face in an encoded frame and returns its
// descriptor plus the winning detection. A frame with zero faces returns
// ErrNoFace. Multi-face frames are not rejected; the highest-confidence
// detection wins.
func (e *Engine) ExtractFromJPEG(data []byte) (Descriptor, Detection, error) {
	if err := e.requireReady(); err != nil {
		return nil, Detection{}, err
	}

	img, err := decodeFrame(data)
	if err != nil {
		return nil, Detection{}, err
	}

	e.infMu.Lock()
	defer e.infMu.Unlock()

	detections, err := e.detect(img)
	if err != nil {
		return nil, Detection{}, err
	}
	if len(detections) == 0 {
		return nil, Detection{}, ErrNoFace
	}

	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	crop := cropFace(img, best.BBox)
	if crop == nil {
		return nil, Detection{}, ErrNoFace
	}

	crop = e.refineCrop(img, best.BBox, crop)

	start := time.Now()
	embInput := preprocessForEmbedding(crop, e.embedder.inputW, e.embedder.inputH)
	descriptor, err := e.embedder.Extract(embInput)
	if err != nil {
		return nil, Detection{}, fmt.Errorf("embed: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	return descriptor, best, nil
}

// DetectFromJPEG runs detection only, for the live overlay feed.
func (e *Engine) DetectFromJPEG(data []byte) ([]Detection, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}

	img, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}

	e.infMu.Lock()
	defer e.infMu.Unlock()
	return e.detect(img)
}

func (e *Engine) detect(img image.Image) ([]Detection, error) {
	bounds := img.Bounds()

	start := time.Now()
	detInput := preprocessForDetection(img, e.detector.inputW, e.detector.inputH)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	detections, err := e.detector.Detect(detInput, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	return detections, nil
}

// refineCrop runs the landmark head and re-crops around the landmark centroid
// when it drifts from the box center. Landmark failure is not fatal: the
// original crop is still usable.
func (e *Engine) refineCrop(img image.Image, bbox [4]float32, crop image.Image) image.Image {
	start := time.Now()
	defer func() {
		observability.InferenceDuration.WithLabelValues("landmarks").Observe(time.Since(start).Seconds())
	}()

	cropBounds := crop.Bounds()
	lmInput := preprocessForLandmarks(crop, e.landmarks.inputW, e.landmarks.inputH)
	landmarks, err := e.landmarks.Refine(lmInput, cropBounds.Dx(), cropBounds.Dy())
	if err != nil {
		slog.Warn("landmark refinement failed, using detector crop", "error", err)
		return crop
	}

	cx, cy := landmarkCentroid(landmarks)

	// Translate the centroid back into frame coordinates and shift the box.
	dx := (bbox[0] + cx) - (bbox[0]+bbox[2])/2
	dy := (bbox[1] + cy) - (bbox[1]+bbox[3])/2

	shifted := [4]float32{bbox[0] + dx, bbox[1] + dy, bbox[2] + dx, bbox[3] + dy}
	if refined := cropFace(img, shifted); refined != nil {
		return refined
	}
	return crop
}

func (e *Engine) requireReady() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != Ready {
		return ErrNotReady
	}
	return nil
}

// Close releases all ONNX sessions.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detector != nil {
		e.detector.Close()
	}
	if e.landmarks != nil {
		e.landmarks.Close()
	}
	if e.embedder != nil {
		e.embedder.Close()
	}
}

func decodeFrame(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
	}
	return img, nil
}
