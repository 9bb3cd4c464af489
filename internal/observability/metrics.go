package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiosk",
		Name:      "frames_captured_total",
		Help:      "Total number of still frames captured from the camera",
	})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kiosk",
		Name:      "submissions_total",
		Help:      "Capture submissions by flow and outcome",
	}, []string{"flow", "outcome"})

	NoFaceOutcomes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kiosk",
		Name:      "no_face_total",
		Help:      "Confirmed frames in which no face was detected",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kiosk",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ModelReadiness = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kiosk",
		Name:      "model_ready",
		Help:      "1 when all face models are loaded, 0 otherwise",
	})

	CameraOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kiosk",
		Name:      "camera_open",
		Help:      "1 while the camera device is held open",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kiosk",
		Name:      "http_request_duration_seconds",
		Help:      "Local API request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kiosk",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket clients",
	})
)
