package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GrzywN/frame-picker-sub000/internal/log"
	"github.com/GrzywN/frame-picker-sub000/internal/metrics"
	"github.com/GrzywN/frame-picker-sub000/internal/presign"
	"github.com/GrzywN/frame-picker-sub000/internal/session"
	"github.com/GrzywN/frame-picker-sub000/internal/tier"
	"github.com/GrzywN/frame-picker-sub000/internal/usage"
)

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type statusResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
}

type frameResponse struct {
	FrameIndex  int     `json:"frame_index"`
	Score       float64 `json:"score"`
	Timestamp   float64 `json:"timestamp"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	FileSize    int64   `json:"file_size,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
}

type processRequest struct {
	Mode        string   `json:"mode"`
	Quality     string   `json:"quality"`
	Count       int      `json:"count"`
	SampleRate  int      `json:"sample_rate"`
	MinInterval *float64 `json:"min_interval"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	t := tierFrom(r)
	sess := &session.Session{
		ID:        uuid.NewString(),
		Status:    session.StatusCreated,
		Message:   "Session created successfully",
		Tier:      t,
		Options:   tier.DefaultOptions(),
		UserKey:   s.userKeyFrom(r),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.deps.Store.Put(r.Context(), sess); err != nil {
		s.logger.Error().Err(err).Msg("session create failed")
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	metrics.SessionsCreatedTotal.WithLabelValues(string(t)).Inc()
	s.logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldTier, string(t)).
		Str(log.FieldUserKey, sess.UserKey).
		Str(log.FieldEvent, "session.created").
		Msg("session created")

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Message:   sess.Message,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Message:   sess.Message,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	limits := tier.LimitsFor(sess.Tier)

	// Bound the multipart reader a bit above the tier limit so an
	// oversized body fails with 413 instead of filling the disk.
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxFileSize+1<<20)

	file, header, err := r.FormFile("video")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			metrics.UploadsTotal.WithLabelValues(string(sess.Tier), "rejected").Inc()
			writeError(w, http.StatusRequestEntityTooLarge, "File size exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, "missing multipart field: video")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := tier.ValidateFile(header.Filename, contentType, header.Size, sess.Tier); err != nil {
		metrics.UploadsTotal.WithLabelValues(string(sess.Tier), "rejected").Inc()
		code := http.StatusBadRequest
		if errors.Is(err, tier.ErrTooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeError(w, code, err.Error())
		return
	}

	dir := filepath.Join(s.deps.DataDir, sess.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error().Err(err).Msg("create session dir failed")
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	path := filepath.Join(dir, "input"+safeExt(header.Filename))
	dst, err := os.Create(path) // #nosec G304
	if err != nil {
		s.logger.Error().Err(err).Msg("create upload file failed")
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	written, err := io.Copy(dst, file)
	closeErr := dst.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(path)
		s.logger.Error().AnErr("copy", err).AnErr("close", closeErr).Msg("write upload failed")
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	sess.Status = session.StatusUploaded
	sess.Message = "Video uploaded successfully"
	sess.VideoPath = path
	sess.VideoName = header.Filename
	sess.VideoSize = written
	if err := s.deps.Store.Put(r.Context(), sess); err != nil {
		s.logger.Error().Err(err).Msg("store upload state failed")
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	metrics.UploadsTotal.WithLabelValues(string(sess.Tier), "accepted").Inc()
	metrics.UploadBytes.Observe(float64(written))
	s.logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Int64(log.FieldFileSize, written).
		Str(log.FieldEvent, "upload.accepted").
		Msg("video uploaded")

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Video uploaded successfully",
		"session_id": sess.ID,
		"file_info": map[string]any{
			"filename": header.Filename,
			"size":     written,
		},
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if sess.Status != session.StatusUploaded {
		writeError(w, http.StatusBadRequest, "No video uploaded for this session")
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if s.deps.Usage != nil {
		if err := s.deps.Usage.Check(r.Context(), sess.UserKey, sess.Tier); err != nil {
			if errors.Is(err, usage.ErrLimitExceeded) {
				metrics.QuotaRejectionsTotal.WithLabelValues(string(sess.Tier)).Inc()
				writeError(w, http.StatusTooManyRequests, err.Error())
				return
			}
			s.logger.Error().Err(err).Msg("usage check failed")
			writeError(w, http.StatusInternalServerError, "Processing failed")
			return
		}
	}

	opts := tier.Options{
		Mode:       tier.Mode(req.Mode),
		Quality:    tier.Quality(req.Quality),
		Count:      req.Count,
		SampleRate: req.SampleRate,
	}
	if req.MinInterval != nil {
		opts.MinInterval = *req.MinInterval
	}
	sess.Options = tier.ClampOptions(opts, sess.Tier)
	sess.Status = session.StatusProcessing
	sess.Progress = 0
	sess.Message = "Video processing started"
	sess.Error = ""
	if err := s.deps.Store.Put(r.Context(), sess); err != nil {
		s.logger.Error().Err(err).Msg("store processing state failed")
		writeError(w, http.StatusInternalServerError, "Processing failed")
		return
	}
	if err := s.deps.Jobs.Submit(sess); err != nil {
		s.logger.Error().Err(err).Msg("job submit failed")
		writeError(w, http.StatusServiceUnavailable, "Processing failed")
		return
	}

	s.logger.Info().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldMode, string(sess.Options.Mode)).
		Str(log.FieldQuality, string(sess.Options.Quality)).
		Str(log.FieldEvent, "processing.started").
		Msg("processing started")

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     sess.ID,
		"status":         "processing",
		"message":        "Video processing started",
		"estimated_time": 30,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Message:   sess.Message,
		Progress:  sess.Progress,
		Error:     sess.Error,
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if sess.Status != session.StatusCompleted {
		writeError(w, http.StatusConflict, "Processing not completed")
		return
	}
	results := make([]frameResponse, 0, len(sess.Frames))
	for _, f := range sess.Frames {
		results = append(results, frameResponse{
			FrameIndex:  f.Index,
			Score:       f.Score,
			Timestamp:   f.Timestamp,
			Width:       f.Width,
			Height:      f.Height,
			FileSize:    f.FileSize,
			DownloadURL: fmt.Sprintf("/api/sessions/%s/download/%d", sess.ID, f.Index),
		})
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "frameIndex"))
	if err != nil || index < 0 || index >= len(sess.Frames) {
		writeError(w, http.StatusNotFound, "Frame file not found")
		return
	}
	frame := sess.Frames[index]
	if _, err := os.Stat(frame.Path); err != nil {
		writeError(w, http.StatusNotFound, "Frame file not found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="frame_%d.jpg"`, index+1))
	http.ServeFile(w, r, frame.Path)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.deps.Store.Delete(r.Context(), id); err != nil {
		s.logger.Error().Err(err).Str(log.FieldSessionID, id).Msg("session delete failed")
		writeError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}
	if s.deps.DataDir != "" {
		if err := os.RemoveAll(filepath.Join(s.deps.DataDir, id)); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("session files not removed")
		}
	}
	s.logger.Info().Str(log.FieldSessionID, id).Str(log.FieldEvent, "session.deleted").Msg("session deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session cleaned up successfully"})
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req presign.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.deps.Presign.Presign(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// loadSession fetches the session from the URL or writes a 404.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.deps.Store.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeNotFound(w)
		return nil, false
	}
	if err != nil {
		s.logger.Error().Err(err).Str(log.FieldSessionID, id).Msg("session load failed")
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return nil, false
	}
	return sess, true
}

// safeExt keeps the original extension when it looks like one, defaulting
// to .mp4.
func safeExt(name string) string {
	ext := filepath.Ext(name)
	if len(ext) < 2 || len(ext) > 8 {
		return ".mp4"
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ".mp4"
		}
	}
	return ext
}
