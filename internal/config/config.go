package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Camera   CameraConfig   `yaml:"camera"`
	Vision   VisionConfig   `yaml:"vision"`
	Geo      GeoConfig      `yaml:"geo"`
	Capture  CaptureConfig  `yaml:"capture"`
	Session  SessionConfig  `yaml:"session"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// UpstreamConfig points at the remote hostel administration API.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type CameraConfig struct {
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	FPS    int    `yaml:"fps"`
}

// Descriptor extraction runs either on this device or on the remote API.
const (
	VisionModeClient = "client"
	VisionModeServer = "server"
)

type VisionConfig struct {
	ModelsDir          string        `yaml:"models_dir"`
	Mode               string        `yaml:"mode"` // VisionModeClient or VisionModeServer
	DetectionThreshold float64       `yaml:"detection_threshold"`
	LoadTimeout        time.Duration `yaml:"load_timeout"`
}

// GeoConfig configures the one-shot location fix. A fixed kiosk uses the
// "static" provider; "command" shells out to an external locator tool;
// "none" disables location entirely (enrollment-only devices).
type GeoConfig struct {
	Provider  string        `yaml:"provider"`
	Latitude  float64       `yaml:"latitude"`
	Longitude float64       `yaml:"longitude"`
	Command   string        `yaml:"command"`
	Timeout   time.Duration `yaml:"timeout"`
}

type CaptureConfig struct {
	MaxImageWidth   int           `yaml:"max_image_width"`
	JPEGQuality     int           `yaml:"jpeg_quality"`
	SuccessDwell    time.Duration `yaml:"success_dwell"`
	OverlayInterval time.Duration `yaml:"overlay_interval"`
	SubmitTimeout   time.Duration `yaml:"submit_timeout"`
}

type SessionConfig struct {
	Path string `yaml:"path"`
}

type SnapshotConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether snapshot archiving is configured at all.
func (s SnapshotConfig) Enabled() bool {
	return s.Endpoint != ""
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Vision.Mode != VisionModeClient && c.Vision.Mode != VisionModeServer {
		return fmt.Errorf("vision.mode must be %q or %q, got %q", VisionModeClient, VisionModeServer, c.Vision.Mode)
	}
	switch c.Geo.Provider {
	case "static", "command", "none":
	default:
		return fmt.Errorf("geo.provider must be static, command or none, got %q", c.Geo.Provider)
	}
	if c.Geo.Provider == "command" && c.Geo.Command == "" {
		return fmt.Errorf("geo.command is required with the command provider")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 15 * time.Second
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = defaultCameraDevice()
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 720
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 5
	}
	if cfg.Vision.Mode == "" {
		cfg.Vision.Mode = VisionModeClient
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.LoadTimeout == 0 {
		cfg.Vision.LoadTimeout = 60 * time.Second
	}
	if cfg.Geo.Provider == "" {
		cfg.Geo.Provider = "static"
	}
	if cfg.Geo.Timeout == 0 {
		cfg.Geo.Timeout = 20 * time.Second
	}
	if cfg.Capture.MaxImageWidth == 0 {
		cfg.Capture.MaxImageWidth = 640
	}
	if cfg.Capture.JPEGQuality == 0 {
		cfg.Capture.JPEGQuality = 80
	}
	if cfg.Capture.SuccessDwell == 0 {
		cfg.Capture.SuccessDwell = 3 * time.Second
	}
	if cfg.Capture.OverlayInterval == 0 {
		cfg.Capture.OverlayInterval = 500 * time.Millisecond
	}
	if cfg.Capture.SubmitTimeout == 0 {
		cfg.Capture.SubmitTimeout = 30 * time.Second
	}
	if cfg.Session.Path == "" {
		cfg.Session.Path = "kiosk-session.json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func defaultCameraDevice() string {
	switch runtime.GOOS {
	case "darwin":
		return "0"
	default:
		return "/dev/video0"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KIOSK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KIOSK_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("KIOSK_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("KIOSK_CAMERA_DEVICE"); v != "" {
		cfg.Camera.Device = v
	}
	if v := os.Getenv("KIOSK_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("KIOSK_VISION_MODE"); v != "" {
		cfg.Vision.Mode = v
	}
	if v := os.Getenv("KIOSK_GEO_PROVIDER"); v != "" {
		cfg.Geo.Provider = v
	}
	if v := os.Getenv("KIOSK_SESSION_PATH"); v != "" {
		cfg.Session.Path = v
	}
	if v := os.Getenv("KIOSK_SNAPSHOT_ENDPOINT"); v != "" {
		cfg.Snapshot.Endpoint = v
	}
	if v := os.Getenv("KIOSK_SNAPSHOT_ACCESS_KEY"); v != "" {
		cfg.Snapshot.AccessKey = v
	}
	if v := os.Getenv("KIOSK_SNAPSHOT_SECRET_KEY"); v != "" {
		cfg.Snapshot.SecretKey = v
	}
	if v := os.Getenv("KIOSK_SNAPSHOT_BUCKET"); v != "" {
		cfg.Snapshot.Bucket = v
	}
}
