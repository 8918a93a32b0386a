// Package detection talks to the pose and face-landmark inference sidecars.
package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable is returned when the sidecar fails its health check.
var ErrUnavailable = errors.New("inference service unavailable")

// healthTTL is how long a successful health check is trusted.
const healthTTL = 30 * time.Second

// Config points a client at one sidecar.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// HealthResponse is the sidecar /health body.
type HealthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// sidecar is the HTTP plumbing shared by both clients.
type sidecar struct {
	name       string
	endpoint   string
	client     *http.Client
	mu         sync.RWMutex
	healthy    bool
	lastHealth time.Time
	now        func() time.Time
}

func newSidecar(name string, cfg Config) *sidecar {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &sidecar{
		name:     name,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

// IsHealthy checks the sidecar's /health, caching a positive answer.
func (s *sidecar) IsHealthy() bool {
	s.mu.RLock()
	if s.healthy && s.now().Sub(s.lastHealth) < healthTTL {
		s.mu.RUnlock()
		return true
	}
	s.mu.RUnlock()

	health, err := s.HealthInfo(context.Background())
	ok := err == nil && health.ModelLoaded

	s.mu.Lock()
	s.healthy = ok
	if ok {
		s.lastHealth = s.now()
	}
	s.mu.Unlock()
	return ok
}

// HealthInfo fetches /health without using the cache.
func (s *sidecar) HealthInfo(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s health: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s health check returned status %d", s.name, resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

func (s *sidecar) invalidate() {
	s.mu.Lock()
	s.healthy = false
	s.mu.Unlock()
}

// post uploads one JPEG frame as multipart form data and decodes the JSON reply into out.
func (s *sidecar) post(ctx context.Context, path string, imageData []byte, out any) error {
	if !s.IsHealthy() {
		return fmt.Errorf("%s: %w", s.name, ErrUnavailable)
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return err
	}
	if _, err := fw.Write(imageData); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, &b)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		s.invalidate()
		return fmt.Errorf("%s request failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s inference failed (%d): %s", s.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", s.name, err)
	}
	return nil
}
