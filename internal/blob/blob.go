// Package blob stores uploaded files (damage and property photos) and
// returns the public URL they can be fetched from.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Drivers.
const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

// MaxObjectSize bounds a single upload.
const MaxObjectSize = 20 << 20

// Store uploads objects under a key and reports their public URL.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// CleanKey normalises an object key and rejects traversal.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("blob: empty key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("blob: invalid key %q", key)
		}
	}
	return key, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("blob: read upload: %w", err)
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("blob: object exceeds %d bytes", MaxObjectSize)
	}
	return data, nil
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
