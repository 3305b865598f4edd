package handlers

import (
	"net/http"

	"detectsuite/internal/config"
	"detectsuite/internal/dto"
	"detectsuite/internal/logger"
	"detectsuite/internal/services"
)

// ModelInfoHandler describes the loaded detector and its class catalog.
func ModelInfoHandler(manager *services.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		detector := manager.Pipeline().Detector()
		catalog := detector.Catalog()

		writeJSON(w, http.StatusOK, dto.ModelInfo{
			Name:       detector.Name(),
			Detector:   cfg.Detector,
			Scored:     detector.Scored(),
			Total:      catalog.Len(),
			Classes:    catalog.Classes(),
			Confidence: cfg.Confidence,
			Modes:      []string{string(config.ModeImage), string(config.ModeVideo), string(config.ModeWebcam)},
		}, logger)
	}
}
