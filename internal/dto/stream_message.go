package dto

// Stream message types sent to viewers.
const (
	MessageFrame = "frame"
	MessageSkip  = "skip"
	MessageDone  = "done"
)

// StreamMessage is pushed over the viewer websocket for every step of a
// video or webcam session.
type StreamMessage struct {
	Type     string         `json:"type"`
	Stream   string         `json:"stream"`
	Index    int            `json:"index"`
	Image    string         `json:"image,omitempty"` // base64 JPEG
	Counts   map[string]int `json:"counts,omitempty"`
	Summary  string         `json:"summary,omitempty"`
	Progress float64        `json:"progress,omitempty"` // 0..1, video only
	Error    string         `json:"error,omitempty"`

	Processed int  `json:"processed,omitempty"`
	Skipped   int  `json:"skipped,omitempty"`
	Cancelled bool `json:"cancelled,omitempty"`
}
