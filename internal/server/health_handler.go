package server

import (
	"net/http"
	"runtime"
	"time"
)

// AppInfo is the health probe payload: static build identity plus uptime.
type AppInfo struct {
	ProductName string `json:"productName"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Arch        string `json:"arch"`
	UptimeMs    int64  `json:"uptimeMs"`
}

// HealthHandler serves the app-info probe, independent of the stream.
type HealthHandler struct {
	productName string
	version     string
	startedAt   time.Time
}

// NewHealthHandler records the build identity and start time.
func NewHealthHandler(productName, version string) *HealthHandler {
	return &HealthHandler{
		productName: productName,
		version:     version,
		startedAt:   time.Now(),
	}
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AppInfo{
		ProductName: h.productName,
		Version:     h.version,
		Platform:    runtime.GOOS,
		Arch:        runtime.GOARCH,
		UptimeMs:    time.Since(h.startedAt).Milliseconds(),
	})
}
