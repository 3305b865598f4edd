package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"detectsuite/internal/config"
	"detectsuite/internal/dto"
	"detectsuite/internal/logger"
	"detectsuite/internal/repository"
	"detectsuite/internal/services"
	"detectsuite/internal/services/capture"
)

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png"}
	videoExtensions = []string{".mp4", ".avi", ".mov"}
)

func hasExtension(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// DetectImagesHandler runs detection on one or more uploaded images
// (multipart field "images") and returns counts plus annotated previews.
func DetectImagesHandler(manager *services.Manager, prefs repository.PreferenceRepository, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		session := browserSession(w, r)

		if err := parseUpload(w, r, cfg); err != nil {
			writeError(w, err, logger)
			return
		}
		headers := r.MultipartForm.File["images"]
		if len(headers) == 0 {
			writeError(w, badRequest("no images uploaded"), logger)
			return
		}

		images := make([]capture.EncodedImage, 0, len(headers))
		for _, fh := range headers {
			if !hasExtension(fh.Filename, imageExtensions) {
				writeError(w, badRequest("%s: only JPG and PNG images are supported", fh.Filename), logger)
				return
			}
			img, err := readUpload(fh)
			if err != nil {
				writeError(w, err, logger)
				return
			}
			images = append(images, img)
		}

		opts, err := resolveOptions(r, manager.Pipeline().Catalog(), prefs, session, cfg)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		response, err := manager.DetectImages(images, opts)
		if err != nil {
			writeError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, response, logger)
	}
}

// DownloadImageHandler returns the annotated version of a single uploaded
// image (multipart field "image") as a PNG attachment.
func DownloadImageHandler(manager *services.Manager, prefs repository.PreferenceRepository, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		session := browserSession(w, r)

		if err := parseUpload(w, r, cfg); err != nil {
			writeError(w, err, logger)
			return
		}
		headers := r.MultipartForm.File["image"]
		if len(headers) != 1 {
			writeError(w, badRequest("expected exactly one image, got %d", len(headers)), logger)
			return
		}
		img, err := readUpload(headers[0])
		if err != nil {
			writeError(w, err, logger)
			return
		}

		opts, err := resolveOptions(r, manager.Pipeline().Catalog(), prefs, session, cfg)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		png, err := manager.AnnotateForDownload(img, opts)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dto.DownloadName(img.Name)))
		w.Write(png)
	}
}
