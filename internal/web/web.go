package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"ufcbot/internal/bot"
	"ufcbot/internal/config"
	appLog "ufcbot/internal/log"
	"ufcbot/internal/selector"
)

// Announcer is the part of bot.Service the HTTP API needs.
type Announcer interface {
	Next(ctx context.Context) (selector.Announcement, error)
	Message(ctx context.Context) (string, error)
	Announce(ctx context.Context, trigger string) error
}

// Server exposes the keep-alive endpoint, metrics and a small API.
type Server struct {
	cfg       *config.Config
	announcer Announcer
	metrics   http.Handler
	router    *mux.Router
}

// NewServer constructs a new Server. metrics may be nil to skip /metrics.
func NewServer(cfg *config.Config, announcer Announcer, metrics http.Handler) *Server {
	s := &Server{
		cfg:       cfg,
		announcer: announcer,
		metrics:   metrics,
		router:    mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the router wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(s.router)
	}
	return s.router
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/next", s.handleNext).Methods(http.MethodGet)
	api.HandleFunc("/preview", s.handlePreview).Methods(http.MethodGet)
	api.HandleFunc("/announce", s.handleAnnounce).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hosting platforms ping /health without credentials.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ufcbot", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// announcementResponse is the JSON shape for /api/next.
type announcementResponse struct {
	Title    string    `json:"title"`
	When     string    `json:"when"`
	Start    time.Time `json:"start"`
	Location string    `json:"location"`
	Card     []string  `json:"card"`
	URL      string    `json:"url,omitempty"`
}

// handleNext returns the next upcoming event as JSON without posting it.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	a, err := s.announcer.Next(r.Context())
	if err != nil {
		s.writeAnnouncerError(w, err)
		return
	}

	card := a.CardText
	if card == nil {
		card = []string{}
	}
	writeJSON(w, http.StatusOK, announcementResponse{
		Title:    a.Title,
		When:     a.WhenText,
		Start:    a.Start,
		Location: a.LocationText,
		Card:     card,
		URL:      a.URL,
	})
}

// handlePreview returns the exact chat message that would be posted.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	msg, err := s.announcer.Message(r.Context())
	if err != nil && !errors.Is(err, selector.ErrNotFound) {
		appLog.Error("api preview: feed failed", err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(msg))
}

// handleAnnounce posts the next event to the chat channel right away.
func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	if err := s.announcer.Announce(r.Context(), bot.TriggerHTTP); err != nil {
		appLog.Error("api announce failed", err)
		writeError(w, http.StatusBadGateway, "failed to post announcement")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "posted"})
}

func (s *Server) writeAnnouncerError(w http.ResponseWriter, err error) {
	if errors.Is(err, selector.ErrNotFound) {
		writeError(w, http.StatusNotFound, selector.ErrNotFound.Error())
		return
	}
	appLog.Error("api next: feed failed", err)
	writeError(w, http.StatusBadGateway, "failed to load calendar feed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
