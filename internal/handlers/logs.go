package handlers

import (
	"net/http"
	"os"

	"detectsuite/internal/logger"
)

// ShowLogsHandler serves the log file of one level as plain text.
func ShowLogsHandler(logger *logger.Logger, level string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := logger.FilePath(level)

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Log file not found: " + level + ".log"))
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filePath)
	}
}

// ClearLogsHandler truncates the log file of one level.
func ClearLogsHandler(logger *logger.Logger, level string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if err := logger.CleanLogs(level); err != nil {
			writeError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
