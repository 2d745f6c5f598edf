package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldUserKey   = "user_key"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Domain fields
	FieldTier       = "tier"
	FieldMode       = "mode"
	FieldQuality    = "quality"
	FieldFrameIndex = "frame_index"
	FieldFrameCount = "frame_count"
	FieldProgress   = "progress"
	FieldFileSize   = "file_size"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
