package model

import "time"

// Preferences are the per-browser settings of the UI. They seed the
// defaults of a request; detection results themselves are never stored.
type Preferences struct {
	Session    string    `json:"session"`
	Mode       string    `json:"mode"`
	Confidence float64   `json:"confidence"`
	Classes    []int     `json:"classes"` // nil means every class
	DarkMode   bool      `json:"darkMode"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
