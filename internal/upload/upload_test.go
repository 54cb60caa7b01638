package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	contentType string
	received    int64
	err         error
}

func (f *fakeBackend) UploadAttachment(ctx context.Context, groupID, name, contentType string, r io.Reader, size int64) (string, error) {
	f.contentType = contentType
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(buf)
		f.received += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://files.example.com/group_files/" + groupID + "/1_" + name, nil
}

func pngPayload(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte("\x89PNG\r\n\x1a\n"))
	return data
}

func collect(progress <-chan Progress, result <-chan Result) ([]Progress, Result) {
	var values []Progress
	for p := range progress {
		values = append(values, p)
	}
	return values, <-result
}

func TestUploadReportsMonotonicProgress(t *testing.T) {
	backend := &fakeBackend{}
	u := NewUploader(backend, zap.NewNop())
	data := pngPayload(2 << 20)

	values, res := collect(u.Upload(context.Background(), "g1", "photo.png", bytes.NewReader(data), int64(len(data))))

	require.NoError(t, res.Err)
	require.True(t, IsImageURL(res.URL))
	require.Equal(t, int64(len(data)), backend.received)
	require.Equal(t, "image/png", backend.contentType)

	require.Greater(t, len(values), 2)
	require.Equal(t, Progress(0), values[0])
	require.Equal(t, Progress(100), values[len(values)-1])
	for i := 1; i < len(values); i++ {
		require.GreaterOrEqual(t, values[i], values[i-1])
	}
}

func TestUploadFailure(t *testing.T) {
	u := NewUploader(&fakeBackend{err: errors.New("bucket gone")}, zap.NewNop())

	values, res := collect(u.Upload(context.Background(), "g1", "notes.txt", bytes.NewReader([]byte("hello")), 5))

	var upErr *UploadError
	require.ErrorAs(t, res.Err, &upErr)
	require.Equal(t, "notes.txt", upErr.Name)
	require.False(t, upErr.Cancelled())
	require.NotContains(t, values, Progress(100))
}

func TestUploadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u := NewUploader(&fakeBackend{}, zap.NewNop())

	_, res := collect(u.Upload(ctx, "g1", "a.png", bytes.NewReader(pngPayload(1024)), 1024))

	var upErr *UploadError
	require.ErrorAs(t, res.Err, &upErr)
	require.True(t, upErr.Cancelled())
}

func TestIsImageURL(t *testing.T) {
	cases := map[string]bool{
		"https://cdn/x/photo.JPG":           true,
		"https://cdn/x/photo.jpeg?sig=abc":  true,
		"https://cdn/x/anim.gif":            true,
		"https://cdn/x/pic.webp":            true,
		"https://cdn/x/pic.png#frag":        true,
		"https://cdn/x/report.pdf":          false,
		"https://cdn/x/archive.png.zip":     false,
		"https://cdn/x/noext":               false,
		"https://cdn/x/file.txt?name=a.png": false,
	}
	for raw, want := range cases {
		require.Equal(t, want, IsImageURL(raw), raw)
	}
}
