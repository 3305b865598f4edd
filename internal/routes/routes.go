package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"detectsuite/internal/config"
	"detectsuite/internal/handlers"
	"detectsuite/internal/logger"
	"detectsuite/internal/repository"
	"detectsuite/internal/services"
)

var logLevels = logger.Levels

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
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

// SetupRoutes registers the detection API, the viewer websocket, log
// endpoints and static file serving.
func SetupRoutes(manager *services.Manager, prefs repository.PreferenceRepository, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))

	// API endpoints
	mux.HandleFunc("/api/model", handlers.ModelInfoHandler(manager, cfg, logger))
	mux.HandleFunc("/api/detect/image", handlers.DetectImagesHandler(manager, prefs, cfg, logger))
	mux.HandleFunc("/api/detect/image/download", handlers.DownloadImageHandler(manager, prefs, cfg, logger))
	mux.HandleFunc("/api/detect/video", handlers.DetectVideoHandler(manager, prefs, cfg, logger))
	mux.HandleFunc("/api/webcam/start", handlers.StartWebcamHandler(manager, prefs, cfg, logger))
	mux.HandleFunc("/api/webcam/stop", handlers.StopSessionHandler(manager, logger))
	mux.HandleFunc("/api/sessions", handlers.SessionsHandler(manager, logger))
	mux.HandleFunc("/api/sessions/stop", handlers.StopSessionHandler(manager, logger))
	mux.HandleFunc("/api/preferences", handlers.PreferencesHandler(manager, prefs, cfg, logger))
	mux.HandleFunc("/api/view", handlers.ViewWebsocketHandler(manager, logger))

	// Log endpoints
	for _, level := range logLevels {
		mux.HandleFunc("/logs/"+level, handlers.ShowLogsHandler(logger, level))
		mux.HandleFunc("/logs/"+level+"/clear", handlers.ClearLogsHandler(logger, level))
	}

	// Automatic HTML handler mapping for example: /about -> /static/about.html
	mux.HandleFunc("/", dynamicHTMLHandler(cfg.StaticDirectory))

	return mux
}
