package handlers

import (
	"net/http"
	"strconv"

	"detectsuite/internal/config"
	"detectsuite/internal/logger"
	"detectsuite/internal/repository"
	"detectsuite/internal/services"
)

// DetectVideoHandler stages an uploaded video (multipart field "video") and
// starts streaming its annotated frames to the caller's viewer socket.
func DetectVideoHandler(manager *services.Manager, prefs repository.PreferenceRepository, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		session := browserSession(w, r)

		if err := parseUpload(w, r, cfg); err != nil {
			writeError(w, err, logger)
			return
		}
		file, header, err := r.FormFile("video")
		if err != nil {
			writeError(w, badRequest("no video uploaded"), logger)
			return
		}
		defer file.Close()

		if !hasExtension(header.Filename, videoExtensions) {
			writeError(w, badRequest("%s: only MP4, AVI and MOV videos are supported", header.Filename), logger)
			return
		}

		opts, err := resolveOptions(r, manager.Pipeline().Catalog(), prefs, session, cfg)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		info, err := manager.StartVideo(file, header.Filename, session, opts)
		if err != nil {
			writeError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, info, logger)
	}
}

// StartWebcamHandler opens the capture device (form field "device", default
// from config) and streams to the caller's viewer socket until stopped.
func StartWebcamHandler(manager *services.Manager, prefs repository.PreferenceRepository, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		session := browserSession(w, r)

		opts, err := resolveOptions(r, manager.Pipeline().Catalog(), prefs, session, cfg)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		device := cfg.CameraDevice
		if v := r.FormValue("device"); v != "" {
			d, err := strconv.Atoi(v)
			if err != nil || d < 0 {
				writeError(w, badRequest("invalid camera device %q", v), logger)
				return
			}
			device = d
		}

		info, err := manager.StartWebcam(device, session, opts)
		if err != nil {
			writeError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, info, logger)
	}
}

// StopSessionHandler stops one of the caller's running sessions (query or
// form "id") and returns once its frame source has been released.
func StopSessionHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		session := browserSession(w, r)
		id := r.FormValue("id")
		if id == "" {
			writeError(w, badRequest("missing session id"), logger)
			return
		}
		if err := manager.Stop(id, session); err != nil {
			writeError(w, err, logger)
			return
		}
		logger.Info("Session %s stopped by request", id)
		writeJSON(w, http.StatusOK, map[string]string{"stopped": id}, logger)
	}
}

// SessionsHandler lists the caller's running sessions.
func SessionsHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, manager.Sessions(browserSession(w, r)), logger)
	}
}
