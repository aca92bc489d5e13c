package chat

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var timeNow = time.Now

// newInstanceID returns a per-run instance name for discovery.
func newInstanceID() string {
	return InstancePrefix + uuid.NewString()
}

// shortID trims long identifiers for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// safeFilename strips any directory part a remote sender put in a file name.
func safeFilename(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "/" || strings.TrimSpace(base) == "" {
		return "", false
	}
	return base, true
}
