package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LocalStore writes objects below a directory that the HTTP server exposes
// under PublicBaseURL.
type LocalStore struct {
	dir     string
	baseURL string
	log     *zap.Logger
}

func NewLocalStore(dir, baseURL string, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL, log: logger}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("write object: got %d bytes, want %d", written, size)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("commit object: %w", err)
	}

	s.log.Debug("object stored", zap.String("key", key), zap.Int64("bytes", written), zap.String("content_type", contentType))
	return publicURL(s.baseURL, key), nil
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
