package handlers

import (
	"encoding/json"
	"net/http"

	"detectsuite/internal/config"
	"detectsuite/internal/logger"
	"detectsuite/internal/model"
	"detectsuite/internal/repository"
	"detectsuite/internal/services"
)

// preferencesRequest is the body of a preferences update. Omitted fields
// keep their current value; "classes": null selects every class.
type preferencesRequest struct {
	Mode       *string         `json:"mode"`
	Confidence *float64        `json:"confidence"`
	Classes    json.RawMessage `json:"classes"`
	DarkMode   *bool           `json:"darkMode"`
}

// PreferencesHandler reads (GET) or updates (POST) the caller's stored preferences.
func PreferencesHandler(manager *services.Manager, prefs repository.PreferenceRepository, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := browserSession(w, r)

		current, err := loadPreferences(prefs, session, cfg)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, current, logger)

		case http.MethodPost:
			var req preferencesRequest
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
				writeError(w, badRequest("invalid preferences body: %v", err), logger)
				return
			}
			if err := applyPreferences(current, req, manager.Pipeline().Catalog()); err != nil {
				writeError(w, err, logger)
				return
			}
			if err := prefs.Save(current); err != nil {
				writeError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusOK, current, logger)

		case http.MethodDelete:
			if err := prefs.Delete(session); err != nil {
				writeError(w, err, logger)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// loadPreferences returns the stored preferences of session, or the
// configured defaults when nothing is stored yet.
func loadPreferences(prefs repository.PreferenceRepository, session string, cfg *config.Config) (*model.Preferences, error) {
	stored, err := prefs.Get(session)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}
	return &model.Preferences{
		Session:    session,
		Mode:       string(cfg.Mode),
		Confidence: cfg.Confidence,
	}, nil
}

func applyPreferences(p *model.Preferences, req preferencesRequest, catalog *model.ClassCatalog) error {
	if req.Mode != nil {
		mode, err := config.ParseMode(*req.Mode)
		if err != nil {
			return badRequest("%v", err)
		}
		p.Mode = string(mode)
	}
	if req.Confidence != nil {
		if *req.Confidence < 0 || *req.Confidence > 1 {
			return badRequest("confidence must be within [0,1], got %v", *req.Confidence)
		}
		p.Confidence = *req.Confidence
	}
	if len(req.Classes) > 0 {
		var ids []int
		if err := json.Unmarshal(req.Classes, &ids); err != nil {
			return badRequest("classes must be a list of class ids: %v", err)
		}
		for _, id := range ids {
			if _, ok := catalog.Name(id); !ok {
				return badRequest("%v", &model.UnknownClassIDError{ClassID: id, CatalogSize: catalog.Len()})
			}
		}
		p.Classes = ids
	}
	if req.DarkMode != nil {
		p.DarkMode = *req.DarkMode
	}
	return nil
}
