package route

import (
	"net/http"
	"os"
	"path/filepath"

	"sharkcam/internal/config"
	"sharkcam/internal/handler"
	"sharkcam/internal/logger"
	"sharkcam/internal/middleware"
	"sharkcam/internal/repository"
)

// dynamicHTMLHandler serves /path as <staticDir>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers static files, the detection API, the live-view
// websocket, log and auth endpoints, and wraps the mux with the
// authentication middleware.
func SetupRoutes(cfg *config.Config, log *logger.Logger, hub handler.ViewerHub,
	detectionRepo repository.DetectionRepository) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hub, log))
	mux.HandleFunc("/api/detections", handler.GetDetectionsHandler(cfg, log, detectionRepo))
	mux.HandleFunc("/api/detections/stats", handler.DetectionStatsHandler(log, detectionRepo))
	mux.HandleFunc("/api/detections/clip", handler.DetectionClipHandler(cfg, log, detectionRepo))

	// Log endpoints
	for name, file := range map[string]string{
		"info":    logger.InfoFile,
		"warning": logger.WarningFile,
		"error":   logger.ErrorFile,
	} {
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(log, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(log, file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping, e.g. /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler(cfg.StaticDirectory))

	return middleware.AuthMiddleware(mux)
}
