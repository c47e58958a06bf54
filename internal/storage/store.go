package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("storage: invalid key")

// ObjectStore is the blob contract the lifecycle controller depends on.
type ObjectStore interface {
	// Upload stores r under key and returns the canonical stored path.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// PublicURL resolves a stored path to a fetchable URL.
	PublicURL(storedPath string) string
	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, storedPath string) error
	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

const keyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewUploadKey builds `owner/<unix-millis>-<random>.<ext>` for an upload. The
// original filename only contributes its extension.
func NewUploadKey(ownerID, filename string, now time.Time) (string, error) {
	owner := strings.Trim(strings.TrimSpace(ownerID), "/")
	if owner == "" || strings.Contains(owner, "/") || owner == "." || owner == ".." {
		return "", ErrInvalidKey
	}
	suffix, err := gonanoid.Generate(keyAlphabet, 10)
	if err != nil {
		return "", fmt.Errorf("storage: generate key suffix: %w", err)
	}
	key := fmt.Sprintf("%s/%d-%s", owner, now.UnixMilli(), suffix)
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 8 && !strings.ContainsAny(ext, "/\\") {
		key += ext
	}
	return key, nil
}

// ThumbnailKey is the storage key for a job's thumbnail image.
func ThumbnailKey(ownerID, jobID string) string {
	return fmt.Sprintf("thumbnails/%s/%s.jpg", ownerID, jobID)
}

// ResolveURL returns stored unchanged when it is already an absolute URL, and
// the store's public URL for it otherwise.
func ResolveURL(store ObjectStore, stored string) string {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return ""
	}
	if IsAbsoluteURL(stored) {
		return stored
	}
	return store.PublicURL(stored)
}

// IsAbsoluteURL reports whether s is an http(s) URL rather than a storage key.
func IsAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(strings.TrimPrefix(key, "./"), "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
