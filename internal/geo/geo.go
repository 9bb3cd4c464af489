package geo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/models"
)

// ErrDenied is returned when no location can be obtained. The capture flow
// treats this as "waiting for location": submission stays disabled, nothing
// polls or falls back.
var ErrDenied = errors.New("location unavailable")

// Provider produces one location sample.
type Provider interface {
	Locate(ctx context.Context) (lat, lng float64, err error)
}

// Source is the one-shot geolocation source. The first successful Acquire
// caches the fix; it is immutable for the lifetime of the Source and every
// later Acquire returns the same sample.
type Source struct {
	provider Provider
	timeout  time.Duration

	mu  sync.Mutex
	fix *models.GeoFix
}

func NewSource(cfg config.GeoConfig) *Source {
	var p Provider
	switch cfg.Provider {
	case "static":
		p = &StaticProvider{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
	case "command":
		p = &CommandProvider{Command: cfg.Command}
	default:
		p = deniedProvider{}
	}
	return &Source{provider: p, timeout: cfg.Timeout}
}

// NewSourceWithProvider is used by tests and by callers with their own
// provider implementation.
func NewSourceWithProvider(p Provider, timeout time.Duration) *Source {
	return &Source{provider: p, timeout: timeout}
}

// Acquire returns the cached fix or asks the provider for one.
func (s *Source) Acquire(ctx context.Context) (models.GeoFix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fix != nil {
		return *s.fix, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	lat, lng, err := s.provider.Locate(ctx)
	if err != nil {
		return models.GeoFix{}, fmt.Errorf("%w: %v", ErrDenied, err)
	}

	s.fix = &models.GeoFix{Latitude: lat, Longitude: lng, AcquiredAt: time.Now()}
	return *s.fix, nil
}

// Fix returns the cached sample without triggering acquisition.
func (s *Source) Fix() (models.GeoFix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fix == nil {
		return models.GeoFix{}, false
	}
	return *s.fix, true
}

// StaticProvider reports fixed coordinates, for kiosks bolted to a wall.
type StaticProvider struct {
	Latitude  float64
	Longitude float64
}

func (p *StaticProvider) Locate(context.Context) (float64, float64, error) {
	if p.Latitude == 0 && p.Longitude == 0 {
		return 0, 0, errors.New("static coordinates not configured")
	}
	return p.Latitude, p.Longitude, nil
}

// CommandProvider shells out to an external locator tool expected to print
// "<latitude> <longitude>" (comma separators also accepted).
type CommandProvider struct {
	Command string
}

func (p *CommandProvider) Locate(ctx context.Context) (float64, float64, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", p.Command).Output()
	if err != nil {
		return 0, 0, fmt.Errorf("run locator: %w", err)
	}
	return ParseCoordinates(string(out))
}

// ParseCoordinates parses "lat lng", "lat,lng" or "lat, lng".
func ParseCoordinates(s string) (float64, float64, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	var parts []string
	for _, f := range fields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed locator output: %q", s)
	}

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse longitude: %w", err)
	}
	return lat, lng, nil
}

type deniedProvider struct{}

func (deniedProvider) Locate(context.Context) (float64, float64, error) {
	return 0, 0, errors.New("no location provider configured")
}
