package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"hasptft/internal/compose"
	"hasptft/internal/config"
	"hasptft/internal/device"
	appLog "hasptft/internal/log"
	"hasptft/internal/touch"
)

// Server provides the diagnostics API for one panel.
type Server struct {
	cfg     *config.Config
	cfgPath string
	dev     *device.Device
	loop    *compose.Loop
	mux     *http.ServeMux

	// Refresh, when set, triggers an immediate page capture.
	Refresh func(ctx context.Context) error

	cfgMu sync.Mutex

	// Reading GRAM back over a slow serial bus takes a while, so the
	// preview is cached briefly.
	previewMu    sync.RWMutex
	previewCache *previewCache
}

// previewCache holds the last encoded preview and its timestamp.
type previewCache struct {
	png       []byte
	updatedAt time.Time
}

const previewCacheTTL = 2 * time.Second

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server. cfgPath, when set, receives rotation
// changes; loop may be nil.
func NewServer(cfg *config.Config, cfgPath string, dev *device.Device, loop *compose.Loop) *Server {
	s := &Server{
		cfg:     cfg,
		cfgPath: cfgPath,
		dev:     dev,
		loop:    loop,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="hasptft", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/panel", s.handlePanel)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/rotation", s.handleRotation)
	s.mux.HandleFunc("POST /api/backlight", s.handleBacklight)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/touch", s.handleTouch)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePanel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dev.Info())
}

// statsResponse is the JSON response shape for /api/stats.
type statsResponse struct {
	Flush  compose.Stats `json:"flush"`
	Frames uint64        `json:"frames"`
	Bands  uint64        `json:"bands"`
	TickMS uint32        `json:"tick_ms"`
	Sim    *simStats     `json:"sim,omitempty"`
}

type simStats struct {
	Commands uint64 `json:"commands"`
	Pixels   uint64 `json:"pixels"`
	Reads    uint64 `json:"reads"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{
		Flush:  s.dev.Comp.Stats(),
		TickMS: s.dev.Ticks.Millis(),
	}
	if s.loop != nil {
		resp.Frames = s.loop.Frames()
		resp.Bands = s.loop.Bands()
	}
	if p := s.dev.Panel; p != nil {
		st := p.Stats()
		resp.Sim = &simStats{Commands: st.Commands, Pixels: st.Pixels, Reads: st.Reads}
	}
	writeJSON(w, http.StatusOK, resp)
}

type rotationRequest struct {
	Rotation *int `json:"rotation"`
	// Save persists the rotation to the config file.
	Save bool `json:"save"`
}

// handleRotation rotates the panel.
//
// POST /api/rotation {"rotation": 1, "save": true}
func (s *Server) handleRotation(w http.ResponseWriter, r *http.Request) {
	var req rotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Rotation == nil || *req.Rotation < 0 || *req.Rotation > 3 {
		writeError(w, http.StatusBadRequest, "rotation must be 0..3")
		return
	}
	s.dev.SetRotation(*req.Rotation)
	s.invalidatePreview()

	if req.Save && s.cfgPath != "" {
		s.cfgMu.Lock()
		s.cfg.Panel.Rotation = *req.Rotation
		err := s.cfg.Save(s.cfgPath)
		s.cfgMu.Unlock()
		if err != nil {
			appLog.Error("failed to save config", err, "path", s.cfgPath)
			writeError(w, http.StatusInternalServerError, "failed to save config")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.dev.Info())
}

type backlightRequest struct {
	On    *bool  `json:"on"`
	Level *uint8 `json:"level"`
}

// handleBacklight switches or dims the backlight.
//
// POST /api/backlight {"on": true, "level": 128}
func (s *Server) handleBacklight(w http.ResponseWriter, r *http.Request) {
	var req backlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.On == nil && req.Level == nil {
		writeError(w, http.StatusBadRequest, "on or level is required")
		return
	}
	bl := s.dev.Backlight
	if req.Level != nil {
		if err := bl.SetLevel(*req.Level); err != nil {
			appLog.Error("backlight level failed", err)
			writeError(w, http.StatusInternalServerError, "failed to set backlight level")
			return
		}
	}
	if req.On != nil {
		if err := bl.Set(*req.On); err != nil {
			appLog.Error("backlight switch failed", err)
			writeError(w, http.StatusInternalServerError, "failed to switch backlight")
			return
		}
	}
	writeJSON(w, http.StatusOK, bl.State())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.Refresh == nil {
		writeError(w, http.StatusNotFound, "no capture source configured")
		return
	}
	if err := s.Refresh(r.Context()); err != nil {
		appLog.Error("manual refresh failed", err)
		writeError(w, http.StatusBadGateway, "capture failed")
		return
	}
	s.invalidatePreview()
	w.WriteHeader(http.StatusNoContent)
}

// touchResponse is the JSON response shape for /api/touch.
type touchResponse struct {
	Enabled bool        `json:"enabled"`
	Point   touch.Point `json:"point"`
	Polls   uint64      `json:"polls"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) handleTouch(w http.ResponseWriter, _ *http.Request) {
	if s.dev.Touch == nil {
		writeJSON(w, http.StatusOK, touchResponse{})
		return
	}
	p, polls, err := s.dev.Touch.Status()
	resp := touchResponse{Enabled: true, Point: p, Polls: polls}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePreview serves what the panel currently shows, read back from GRAM
// when the bus allows it, otherwise from the simulated panel.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	s.previewMu.RLock()
	pc := s.previewCache
	s.previewMu.RUnlock()
	if pc != nil && now.Sub(pc.updatedAt) < previewCacheTTL {
		writePNG(w, pc.png)
		return
	}

	var img image.Image
	if rb := s.dev.Comp.ReadScreen(); rb != nil {
		img = rb
	} else if p := s.dev.Panel; p != nil {
		img = p.Snapshot()
	}
	if img == nil {
		writeError(w, http.StatusNotFound, "panel cannot be read back over this bus")
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		appLog.Error("preview encode failed", err)
		writeError(w, http.StatusInternalServerError, "failed to encode preview")
		return
	}

	s.previewMu.Lock()
	s.previewCache = &previewCache{png: buf.Bytes(), updatedAt: time.Now()}
	s.previewMu.Unlock()
	writePNG(w, buf.Bytes())
}

func (s *Server) invalidatePreview() {
	s.previewMu.Lock()
	s.previewCache = nil
	s.previewMu.Unlock()
}

// staticFileServer serves the embedded status page.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unknown /api/* paths are 404, never HTML.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func writePNG(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
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
