package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"detectsuite/internal/config"
	"detectsuite/internal/logger"
	"detectsuite/internal/model"
	"detectsuite/internal/repository"
	"detectsuite/internal/services"
	"detectsuite/internal/services/capture"
	"detectsuite/internal/services/pipeline"

	"github.com/google/uuid"
)

// SessionCookie identifies a browser across requests.
const SessionCookie = "detectsuite_session"

// multipartMemory is how much of a multipart body is held in memory before
// spilling to disk.
const multipartMemory = 32 << 20

// requestError marks client mistakes that map to 400.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...interface{}) error {
	return &requestError{err: fmt.Errorf(format, args...)}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var reqErr *requestError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrFrameDecode):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrSourceUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error, logger *logger.Logger) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	} else {
		logger.Warning("Request rejected (%d): %v", status, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()}, logger)
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// browserSession returns the caller's session id, issuing a cookie on first use.
func browserSession(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return cookie.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// parseUpload limits the body size and parses a multipart form.
func parseUpload(w http.ResponseWriter, r *http.Request, cfg *config.Config) error {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.UploadLimitMB<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return badRequest("invalid multipart form: %v", err)
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) (capture.EncodedImage, error) {
	f, err := fh.Open()
	if err != nil {
		return capture.EncodedImage{}, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return capture.EncodedImage{}, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
	}
	return capture.EncodedImage{Name: fh.Filename, Data: data}, nil
}

// resolveOptions builds pipeline options from the request, falling back to
// stored preferences and then to the configured defaults. An explicitly
// empty "classes" value selects nothing.
func resolveOptions(r *http.Request, catalog *model.ClassCatalog, prefs repository.PreferenceRepository, session string, cfg *config.Config) (pipeline.Options, error) {
	opts := pipeline.Options{Threshold: cfg.Confidence, Selected: catalog.All()}

	if stored, err := prefs.Get(session); err != nil {
		return opts, err
	} else if stored != nil {
		opts.Threshold = stored.Confidence
		if stored.Classes != nil {
			opts.Selected = knownClasses(stored.Classes, catalog)
		}
	}

	if v := r.FormValue("threshold"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			return opts, badRequest("threshold must be a number within [0,1], got %q", v)
		}
		opts.Threshold = threshold
	}

	if values, ok := r.Form["classes"]; ok {
		var tokens []string
		for _, v := range values {
			tokens = append(tokens, strings.Split(v, ",")...)
		}
		selected, err := catalog.Select(tokens)
		if err != nil {
			return opts, badRequest("invalid class selection: %v", err)
		}
		opts.Selected = selected
	}
	return opts, nil
}

// knownClasses drops stored ids that the loaded model does not have, which
// happens after switching models.
func knownClasses(ids []int, catalog *model.ClassCatalog) model.ClassSet {
	set := make(model.ClassSet, len(ids))
	for _, id := range ids {
		if _, ok := catalog.Name(id); ok {
			set[id] = struct{}{}
		}
	}
	return set
}
