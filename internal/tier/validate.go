package tier

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for selection-time file validation. Both are caught
// before any network call is made.
var (
	ErrInvalidType = errors.New("tier: not a video file")
	ErrTooLarge    = errors.New("tier: file exceeds size limit")
)

// FileError describes why a selected file was rejected.
type FileError struct {
	Sentinel error
	Filename string
	Message  string
}

func (e *FileError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s: %s", e.Filename, e.Message)
	}
	return e.Message
}

func (e *FileError) Unwrap() error {
	return e.Sentinel
}

// ValidateFile checks a selected file against the tier policy before any
// upload is attempted. The MIME type must start with "video/" and the size
// must not exceed the tier's limit.
func ValidateFile(filename, contentType string, size int64, t Tier) error {
	if !strings.HasPrefix(contentType, "video/") {
		return &FileError{
			Sentinel: ErrInvalidType,
			Filename: filename,
			Message:  "please select a video file",
		}
	}
	limits := LimitsFor(t)
	if size > limits.MaxFileSize {
		return &FileError{
			Sentinel: ErrTooLarge,
			Filename: filename,
			Message:  fmt.Sprintf("file must be under %s", FormatSize(limits.MaxFileSize)),
		}
	}
	return nil
}
