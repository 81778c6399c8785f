package fs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/blob"
	"github.com/data-analyst/backend/pkg/logger"
)

const metaSuffix = ".ctype"

// Store is a filesystem-backed blob store. Download URLs point back at this
// service's signed-file endpoint and carry an HMAC over path and expiry, so
// a URL is self-authenticating without any session state.
type Store struct {
	fs      afero.Fs
	root    string
	secret  []byte
	baseURL string
}

func New(filesystem afero.Fs, root, signingSecret, baseURL string) (*Store, error) {
	if err := filesystem.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}

	logger.Info("Blob store initialized", zap.String("root", root))

	return &Store{
		fs:      filesystem,
		root:    root,
		secret:  []byte(signingSecret),
		baseURL: baseURL,
	}, nil
}

func (s *Store) Put(ctx context.Context, blobPath string, data []byte, contentType string) error {
	full := path.Join(s.root, blobPath)

	if err := s.fs.MkdirAll(path.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	if err := afero.WriteFile(s.fs, full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}

	if err := afero.WriteFile(s.fs, full+metaSuffix, []byte(contentType), 0o644); err != nil {
		return fmt.Errorf("failed to write blob metadata: %w", err)
	}

	logger.Info("Blob stored",
		zap.String("path", blobPath),
		zap.Int("size_bytes", len(data)),
		zap.String("content_type", contentType),
	)
	return nil
}

func (s *Store) Get(ctx context.Context, blobPath string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path.Join(s.root, blobPath))
	if os.IsNotExist(err) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// ContentType returns the stored content type for a blob, or a generic
// fallback when the sidecar is missing.
func (s *Store) ContentType(blobPath string) string {
	data, err := afero.ReadFile(s.fs, path.Join(s.root, blobPath)+metaSuffix)
	if err != nil || len(data) == 0 {
		return "application/octet-stream"
	}
	return string(data)
}

func (s *Store) Delete(ctx context.Context, blobPath string) (bool, error) {
	full := path.Join(s.root, blobPath)

	exists, err := afero.Exists(s.fs, full)
	if err != nil {
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	if !exists {
		logger.Warn("Blob not found or already deleted", zap.String("path", blobPath))
		return false, nil
	}

	if err := s.fs.Remove(full); err != nil {
		return false, fmt.Errorf("failed to delete blob: %w", err)
	}
	s.fs.Remove(full + metaSuffix)

	logger.Info("Blob deleted", zap.String("path", blobPath))
	return true, nil
}

func (s *Store) SignedURL(blobPath string, ttl time.Duration) (string, error) {
	exists, err := afero.Exists(s.fs, path.Join(s.root, blobPath))
	if err != nil {
		return "", fmt.Errorf("failed to stat blob: %w", err)
	}
	if !exists {
		return "", blob.ErrNotFound
	}

	expires := time.Now().Add(ttl).Unix()
	sig := s.sign(blobPath, expires)

	signedURL := fmt.Sprintf("%s/api/files/%s?exp=%d&sig=%s",
		s.baseURL, urlEncodePath(blobPath), expires, sig)

	logger.Debug("Signed URL generated", zap.String("path", blobPath), zap.Int64("expires", expires))
	return signedURL, nil
}

// Verify checks a download request's signature and expiry.
func (s *Store) Verify(blobPath string, expires int64, sig string) bool {
	if time.Now().Unix() > expires {
		return false
	}

	expected := s.sign(blobPath, expires)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (s *Store) sign(blobPath string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(blobPath))
	mac.Write([]byte("\n"))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func urlEncodePath(blobPath string) string {
	// Encode each segment but keep the separators readable.
	escaped := ""
	for i, seg := range splitPath(blobPath) {
		if i > 0 {
			escaped += "/"
		}
		escaped += url.PathEscape(seg)
	}
	return escaped
}

func splitPath(p string) []string {
	var segs []string
	current := ""
	for _, r := range p {
		if r == '/' {
			segs = append(segs, current)
			current = ""
			continue
		}
		current += string(r)
	}
	return append(segs, current)
}
