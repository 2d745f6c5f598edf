// Package presign validates upload presign requests and issues
// time-limited signed upload URLs. The signing backend is pluggable;
// the bundled signer is HMAC-based and storage-agnostic.
package presign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxFileSize is the hard ceiling for presigned uploads regardless
	// of tier.
	MaxFileSize = 100 * 1024 * 1024

	// MaxFilenameLength bounds the stored object name.
	MaxFilenameLength = 500

	// Expiry is the lifetime of an issued upload URL.
	Expiry = 3600 * time.Second
)

// allowedTypes is the upload content-type allow-list.
var allowedTypes = map[string]struct{}{
	"video/mp4":       {},
	"video/mpeg":      {},
	"video/quicktime": {},
	"video/x-msvideo": {},
	"video/webm":      {},
}

// Validation failure sentinels.
var (
	ErrContentType = errors.New("presign: content type not allowed")
	ErrFilename    = errors.New("presign: invalid filename")
	ErrFileSize    = errors.New("presign: invalid file size")
)

// Request is the client's presign payload.
type Request struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
}

// Response carries the issued upload slot.
type Response struct {
	UploadID  string `json:"upload_id"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

// Validate checks the request against the allow-list and bounds.
func Validate(req Request) error {
	if _, ok := allowedTypes[req.ContentType]; !ok {
		return fmt.Errorf("%w: %s", ErrContentType, req.ContentType)
	}
	if len(req.Filename) == 0 || len(req.Filename) > MaxFilenameLength {
		return fmt.Errorf("%w: length %d", ErrFilename, len(req.Filename))
	}
	if req.FileSize <= 0 || req.FileSize > MaxFileSize {
		return fmt.Errorf("%w: %d bytes", ErrFileSize, req.FileSize)
	}
	return nil
}

// URLSigner issues an upload URL for a validated request.
type URLSigner interface {
	Sign(uploadID string, req Request, expiresAt time.Time) (string, error)
}

// HMACSigner signs upload URLs with a shared secret. The signature binds
// the upload id, filename, size and deadline.
type HMACSigner struct {
	BaseURL string
	Secret  []byte
}

func (s *HMACSigner) Sign(uploadID string, req Request, expiresAt time.Time) (string, error) {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("presign: parse base url: %w", err)
	}
	exp := strconv.FormatInt(expiresAt.Unix(), 10)

	mac := hmac.New(sha256.New, s.Secret)
	fmt.Fprintf(mac, "%s\n%s\n%d\n%s", uploadID, req.Filename, req.FileSize, exp)
	sig := hex.EncodeToString(mac.Sum(nil))

	q := url.Values{}
	q.Set("filename", req.Filename)
	q.Set("size", strconv.FormatInt(req.FileSize, 10))
	q.Set("expires", exp)
	q.Set("signature", sig)

	base.Path = "/uploads/" + uploadID
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Verify checks a signed URL's signature and deadline.
func (s *HMACSigner) Verify(uploadID, filename string, size int64, expires string, signature string, now time.Time) bool {
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || now.After(time.Unix(unix, 0)) {
		return false
	}
	mac := hmac.New(sha256.New, s.Secret)
	fmt.Fprintf(mac, "%s\n%s\n%d\n%s", uploadID, filename, size, expires)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// Service validates requests and issues upload slots.
type Service struct {
	Signer URLSigner
	now    func() time.Time
}

// NewService creates a presign service around the signer.
func NewService(signer URLSigner) *Service {
	return &Service{Signer: signer, now: time.Now}
}

// Presign validates req and returns a signed upload slot.
func (s *Service) Presign(req Request) (*Response, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	uploadID := uuid.NewString()
	expiresAt := s.now().Add(Expiry)
	signed, err := s.Signer.Sign(uploadID, req, expiresAt)
	if err != nil {
		return nil, err
	}
	return &Response{
		UploadID:  uploadID,
		URL:       signed,
		ExpiresIn: int(Expiry.Seconds()),
	}, nil
}
