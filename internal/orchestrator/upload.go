package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/GrzywN/frame-picker-sub000/internal/log"
	"github.com/GrzywN/frame-picker-sub000/internal/pickerapi"
	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// UploadController validates a file against the tier policy and drives
// session creation plus upload as one step. It exists so the upload path
// has a single owner instead of being repeated per entry point.
type UploadController struct {
	Client   SessionAPI
	Tier     tier.Tier
	Logger   zerolog.Logger
	Progress pickerapi.ProgressFunc
}

// Upload validates f, creates a session and uploads the content. It
// returns the new session ID. A session that was created but could not
// receive the upload is deleted best-effort before the error is returned.
func (u *UploadController) Upload(ctx context.Context, f pickerapi.File) (string, error) {
	if err := tier.ValidateFile(f.Name, f.ContentType, f.Size, u.Tier); err != nil {
		return "", err
	}

	session, err := u.Client.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	logger := u.Logger.With().Str(log.FieldSessionID, session.SessionID).Logger()
	logger.Info().
		Str(log.FieldEvent, "session.created").
		Str("filename", f.Name).
		Int64(log.FieldFileSize, f.Size).
		Msg("session created")

	if err := u.Client.UploadVideo(ctx, session.SessionID, f, u.Progress); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if derr := u.Client.DeleteSession(cleanupCtx, session.SessionID); derr != nil {
			logger.Warn().Err(derr).Str(log.FieldEvent, "session.cleanup_failed").Msg("session cleanup failed")
		}
		return "", err
	}
	logger.Info().Str(log.FieldEvent, "upload.completed").Msg("upload completed")
	return session.SessionID, nil
}
