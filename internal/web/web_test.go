package web

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"hasptft/internal/backlight"
	"hasptft/internal/config"
	"hasptft/internal/device"
)

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) (*Server, *device.Device, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	cfg.BasicAuth = auth
	dev, err := device.Open(cfg, device.Options{Sleep: func(time.Duration) {}})
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return NewServer(cfg, path, dev, nil), dev, path
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthBypassesAuth(t *testing.T) {
	s, _, _ := newTestServer(t, &config.BasicAuthConfig{Username: "u", Password: "p"})
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/panel", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("panel without auth = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/panel", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("panel with auth = %d", rec.Code)
	}
}

func TestPanelInfo(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/panel", "")
	var info device.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Chip != "ili9341" || info.Width != 240 || !info.IDOK {
		t.Fatalf("info = %+v", info)
	}
}

func TestRotationSaves(t *testing.T) {
	s, dev, path := newTestServer(t, nil)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/rotation", `{"rotation":7}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad rotation = %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/rotation", `{"rotation":1,"save":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rotation = %d %s", rec.Code, rec.Body)
	}
	if dev.Rotation() != 1 {
		t.Fatalf("device rotation = %d", dev.Rotation())
	}
	saved, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Panel.Rotation != 1 {
		t.Fatalf("saved rotation = %d", saved.Panel.Rotation)
	}
}

func TestBacklight(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/backlight", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body = %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/backlight", `{"on":true,"level":64}`)
	var st backlight.State
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.On || st.Level != 64 {
		t.Fatalf("state = %+v", st)
	}
}

func TestPreviewIsPanelSized(t *testing.T) {
	s, dev, _ := newTestServer(t, nil)
	dev.Comp.Clear(0x07E0)

	rec := do(t, s.Handler(), http.MethodGet, "/preview.png", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("preview = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 240 || b.Dy() != 320 {
		t.Fatalf("bounds %v", b)
	}
	if _, g, _, _ := img.At(100, 100).RGBA(); g < 0xF000 {
		t.Fatalf("pixel = %v", img.At(100, 100))
	}
}

func TestUnknownAPIIsNotFound(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	if rec := do(t, s.Handler(), http.MethodGet, "/api/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
	if rec := do(t, s.Handler(), http.MethodPost, "/api/refresh", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("refresh without source = %d", rec.Code)
	}
	if rec := do(t, s.Handler(), http.MethodGet, "/api/touch", ""); rec.Code != http.StatusOK {
		t.Fatalf("touch = %d", rec.Code)
	}
}
