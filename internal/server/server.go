// Package server mounts the monitor's HTTP surfaces on a chi router.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"vigil/internal/auth"
	"vigil/internal/database"
	"vigil/internal/middleware"
	"vigil/internal/stream"
	"vigil/internal/ws"
)

// Store is the read side of the event store.
type Store interface {
	GetSession(id string) (*database.Session, error)
	ListSessions(limit int) ([]*database.Session, error)
	ListEvents(sessionID string, since time.Time, limit int) ([]*database.Event, error)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	IsHealthy() bool
}

// Deps are the components the routes serve. Store and Sidecars may be nil.
type Deps struct {
	Auth     *auth.Authenticator
	Store    Store
	Stream   *stream.Broadcaster
	Hub      *ws.Hub
	Sidecars map[string]HealthChecker
	Logger   zerolog.Logger
}

type api struct {
	Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	a := &api{Deps: d}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(a.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/health", a.health)
	r.Post("/api/auth/login", a.login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.Auth))

		r.Get("/api/status", a.status)
		r.Get("/api/sessions", a.listSessions)
		r.Get("/api/sessions/{id}/events", a.listEvents)
		r.Get("/video/stream", d.Stream.ServeHTTP)
		r.Get("/video/snapshot", d.Stream.SnapshotHandler())
		r.Handle("/ws/status", ws.NewHandler(d.Hub))
	})
	return r
}

func (a *api) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.Logger.Debug().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status   string          `json:"status"` // "ok" or "degraded"
	Sidecars map[string]bool `json:"sidecars,omitempty"`
	Viewers  int             `json:"viewers"`
}

// health always answers 200; a down sidecar only degrades the status.
func (a *api) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Viewers: a.Stream.Clients()}
	if len(a.Sidecars) > 0 {
		resp.Sidecars = make(map[string]bool, len(a.Sidecars))
		for name, s := range a.Sidecars {
			ok := s.IsHealthy()
			resp.Sidecars[name] = ok
			if !ok {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := a.Auth.Authenticate(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrAuthDisabled):
		writeError(w, http.StatusNotFound, "authentication is disabled")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		a.Logger.Warn().Str("username", req.Username).Msg("failed login")
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	msg := a.Hub.Latest()
	if msg == nil {
		writeError(w, http.StatusServiceUnavailable, "no frame processed yet")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		writeError(w, http.StatusNotFound, "event store disabled")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := a.Store.ListSessions(limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list sessions")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*database.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *api) listEvents(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		writeError(w, http.StatusNotFound, "event store disabled")
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := a.Store.GetSession(id)
	if err != nil {
		a.Logger.Error().Err(err).Str("session", id).Msg("get session")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		since, err = time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since, want RFC 3339")
			return
		}
	}

	events, err := a.Store.ListEvents(id, since, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("session", id).Msg("list events")
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []*database.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Server runs the router until its context ends.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// New creates a server listening on addr.
func New(addr string, h http.Handler, log zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 60 * time.Second},
		log: log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully with a 30s
// timeout. Request contexts derive from ctx so open streams end with it.
func (s *Server) Run(ctx context.Context) error {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Str("addr", s.srv.Addr).Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.srv.Close()
		return err
	}
	return nil
}
