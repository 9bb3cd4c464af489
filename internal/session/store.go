package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Well-known session keys. These are the only fields the device remembers
// between restarts; everything else lives upstream.
const (
	KeyToken       = "token"
	KeyStudentID   = "studentId"
	KeyStudentName = "studentName"
	KeyHostelID    = "hostelId"
	KeyRegistered  = "isRegistered"
)

// Store is the injected session state interface. A 401 from any upstream
// call triggers Clear.
type Store interface {
	Get(key string) string
	Set(key, value string) error
	SetAll(values map[string]string) error
	Clear() error
}

// FileStore persists session state as a small JSON file next to the kiosk.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		// A corrupt session file is recoverable: start signed out.
		s.values = map[string]string{}
	}
	return s, nil
}

func (s *FileStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.persist()
}

func (s *FileStore) SetAll(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return s.persist()
}

// Clear wipes all session state, in memory and on disk.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]string{}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// SignedIn reports whether a token is present and not known to be expired.
func SignedIn(s Store) bool {
	token := s.Get(KeyToken)
	return token != "" && !TokenExpired(token, time.Now())
}

// TokenExpired inspects the bearer token's exp claim without verifying the
// signature (the upstream API owns verification). Tokens that cannot be
// parsed count as expired so the kiosk forces a fresh login rather than
// hammering the API with garbage.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false // no exp claim: defer to the server
	}
	return now.After(exp.Time)
}
