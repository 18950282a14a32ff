// Package sourceid derives the canonical source path identifying where a
// record came from. Re-ingesting the same origin must produce the same
// identifier, since replacement and deletion are keyed by it.
package sourceid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

const notePrefix = "note:"

// ForPath returns the canonical identifier for a filesystem file: the
// cleaned absolute path. Same file, same ID, regardless of how the caller
// spelled the path.
func ForPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// ForURL normalizes a web address: scheme and host lowercased, fragment
// dropped, path and query kept as given.
func ForURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

// ForNote returns a synthetic identifier for pasted content with no file or
// URL behind it. The hash covers the content alone, so saving the identical
// note twice replaces rather than duplicates, even under a new title.
func ForNote(content string) string {
	h := sha256.Sum256([]byte(content))
	return notePrefix + hex.EncodeToString(h[:8])
}

// ForRepo scopes a ref (file path, issue number, commit hash) to its
// repository URL, e.g. "https://host/org/repo#cmd/main.go".
func ForRepo(repoURL, ref string) string {
	return repoURL + "#" + ref
}
