package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ObjectStore persists uploaded attachments and returns a retrievable URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// ObjectKey places an attachment under group_files/<groupID>/<unixMillis>_<name>.
func ObjectKey(groupID, name string, now time.Time) string {
	return fmt.Sprintf("group_files/%s/%d_%s", groupID, now.UnixMilli(), SanitizeName(name))
}

// SanitizeName keeps the base name and drops characters that would change the key layout.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '?' || r == '#' || r < 0x20:
			return -1
		case r == ' ':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
