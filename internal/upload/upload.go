package upload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Progress is a completion percentage in [0, 100].
type Progress int

type Result struct {
	URL string
	Err error
}

// UploadError reports a failed upload. The upload is abandoned, not retried.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Cancelled reports whether the upload was aborted through its context.
func (e *UploadError) Cancelled() bool {
	return errors.Is(e.Err, context.Canceled)
}

type Backend interface {
	UploadAttachment(ctx context.Context, groupID, name, contentType string, r io.Reader, size int64) (string, error)
}

type Uploader struct {
	backend Backend
	log     *zap.Logger
}

func NewUploader(backend Backend, logger *zap.Logger) *Uploader {
	return &Uploader{backend: backend, log: logger}
}

const sniffLen = 3072

// Upload streams r to the group's attachment store. Progress values are
// non-decreasing and end at 100 on success; the progress channel is closed
// before the single Result is sent. Cancelling ctx aborts the transfer.
func (u *Uploader) Upload(ctx context.Context, groupID, name string, r io.Reader, size int64) (<-chan Progress, <-chan Result) {
	progress := make(chan Progress, 101)
	result := make(chan Result, 1)

	go func() {
		defer close(result)

		br := bufio.NewReaderSize(r, sniffLen)
		head, _ := br.Peek(sniffLen)
		contentType := mimetype.Detect(head).String()

		pr := &progressReader{r: br, size: size, out: progress}
		pr.emit(0)
		url, err := u.backend.UploadAttachment(ctx, groupID, name, contentType, pr, size)
		if err != nil {
			close(progress)
			u.log.Warn("attachment upload failed", zap.String("group_id", groupID), zap.String("name", name), zap.Error(err))
			result <- Result{Err: &UploadError{Name: name, Err: err}}
			return
		}
		pr.emit(100)
		close(progress)
		result <- Result{URL: url}
	}()

	return progress, result
}

// progressReader reports at most 99 while bytes flow; 100 is reserved for a
// confirmed upload.
type progressReader struct {
	r    io.Reader
	size int64
	read int64
	last Progress
	sent bool
	out  chan<- Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.size > 0 {
		p.read += int64(n)
		pct := Progress(p.read * 100 / p.size)
		if pct > 99 {
			pct = 99
		}
		p.emit(pct)
	}
	return n, err
}

func (p *progressReader) emit(pct Progress) {
	if p.sent && pct <= p.last {
		return
	}
	p.last = pct
	p.sent = true
	p.out <- pct
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImageURL decides whether an attachment renders inline or as a download link.
func IsImageURL(raw string) bool {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return imageExts[strings.ToLower(path.Ext(p))]
}
