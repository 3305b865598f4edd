package dto

import (
	"encoding/json"
	"time"
)

// SessionInfo describes a running video or webcam session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"startedAt"`
	Frames    int       `json:"frames"`
	Total     int       `json:"total,omitempty"`
}

// MarshalJSON formats StartedAt as a clock time.
func (s SessionInfo) MarshalJSON() ([]byte, error) {
	type Alias SessionInfo
	return json.Marshal(&struct {
		StartedAt string `json:"startedAt"`
		Alias
	}{
		StartedAt: s.StartedAt.Format("15:04:05"),
		Alias:     (Alias)(s),
	})
}
