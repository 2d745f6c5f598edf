package pickerapi

import "encoding/json"

// Session is the server's record of one upload-through-results run.
type Session struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Session status values as reported by the processing service.
const (
	StatusCreated    = "created"
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// SessionStatus is one poll response. Progress is clamped to [0,100] on
// decode; out-of-range values from the server are not trusted verbatim.
type SessionStatus struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
}

// UnmarshalJSON clamps Progress into [0,100].
func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	type alias SessionStatus
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Progress < 0 {
		a.Progress = 0
	}
	if a.Progress > 100 {
		a.Progress = 100
	}
	*s = SessionStatus(a)
	return nil
}

// FrameResult is one extracted frame. Immutable once received; ordered
// ascending by FrameIndex for display regardless of score.
type FrameResult struct {
	FrameIndex  int     `json:"frame_index"`
	Score       float64 `json:"score"`
	Timestamp   float64 `json:"timestamp"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	FileSize    int64   `json:"file_size,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
}

// processRequest is the wire form of tier.Options. The min_interval field
// is only sent when more than one frame is requested; for a single frame
// the remote contract ignores it.
type processRequest struct {
	Mode        string   `json:"mode"`
	Quality     string   `json:"quality"`
	Count       int      `json:"count"`
	SampleRate  int      `json:"sample_rate"`
	MinInterval *float64 `json:"min_interval,omitempty"`
}
