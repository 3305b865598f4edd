package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"detectsuite/internal/model"
)

// PreferenceRepository implements repository.PreferenceRepository for SQLite.
type PreferenceRepository struct {
	db *DB
}

// NewPreferenceRepository creates a new SQLite preference repository.
func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get retrieves the preferences of a session, or nil if none are stored.
func (r *PreferenceRepository) Get(session string) (*model.Preferences, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var (
		prefs   model.Preferences
		classes sql.NullString
	)
	err := r.db.Conn().QueryRow(`
		SELECT session, mode, confidence, classes, dark_mode, updated_at
		FROM preferences WHERE session = ?
	`, session).Scan(&prefs.Session, &prefs.Mode, &prefs.Confidence, &classes, &prefs.DarkMode, &prefs.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	if classes.Valid {
		ids, err := decodeClasses(classes.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decode classes of session %s: %w", session, err)
		}
		prefs.Classes = ids
	}
	return &prefs, nil
}

// Save inserts or replaces the preferences of prefs.Session.
func (r *PreferenceRepository) Save(prefs *model.Preferences) error {
	if prefs.Session == "" {
		return fmt.Errorf("preferences need a session")
	}

	r.db.Lock()
	defer r.db.Unlock()

	var classes sql.NullString
	if prefs.Classes != nil {
		classes = sql.NullString{String: encodeClasses(prefs.Classes), Valid: true}
	}
	prefs.UpdatedAt = time.Now().UTC()

	_, err := r.db.Conn().Exec(`
		INSERT INTO preferences (session, mode, confidence, classes, dark_mode, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session) DO UPDATE SET
			mode = excluded.mode,
			confidence = excluded.confidence,
			classes = excluded.classes,
			dark_mode = excluded.dark_mode,
			updated_at = excluded.updated_at
	`, prefs.Session, prefs.Mode, prefs.Confidence, classes, prefs.DarkMode, prefs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// Delete removes the preferences of a session.
func (r *PreferenceRepository) Delete(session string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM preferences WHERE session = ?`, session); err != nil {
		return fmt.Errorf("failed to delete preferences: %w", err)
	}
	return nil
}

// PruneBefore removes preferences not updated since cutoff and returns how many went.
func (r *PreferenceRepository) PruneBefore(cutoff time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM preferences WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune preferences: %w", err)
	}
	return result.RowsAffected()
}

func encodeClasses(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func decodeClasses(s string) ([]int, error) {
	ids := []int{}
	if s == "" {
		return ids, nil
	}
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
