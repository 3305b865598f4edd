package repository

import (
	"time"

	"detectsuite/internal/model"
)

// PreferenceRepository defines the interface for stored UI preferences.
type PreferenceRepository interface {
	// Get returns nil, nil when the session has no stored preferences.
	Get(session string) (*model.Preferences, error)
	Save(prefs *model.Preferences) error
	Delete(session string) error
	PruneBefore(cutoff time.Time) (int64, error)
}
