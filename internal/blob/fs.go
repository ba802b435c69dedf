package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/atomicfile"
)

// FS stores objects on the local file system and serves them over HTTP.
type FS struct {
	root    string // absolute path
	baseURL string
}

// NewFS creates the root directory if needed. baseURL is the public prefix
// the files are served under.
func NewFS(root, baseURL string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &FS{root: abs, baseURL: baseURL}, nil
}

// safePath resolves key under root and rejects anything that escapes it.
func (f *FS) safePath(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(filepath.Join(f.root, filepath.FromSlash(cleaned)))
	if err != nil {
		return "", fmt.Errorf("blob: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("blob: path escapes root: %s", key)
	}
	return abs, nil
}

// Upload writes the object atomically.
func (f *FS) Upload(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	abs, err := f.safePath(key)
	if err != nil {
		return "", err
	}
	data, err := readLimited(r)
	if err != nil {
		return "", err
	}
	if err := atomicfile.Write(abs, data, 0o644); err != nil {
		return "", err
	}
	cleaned, _ := CleanKey(key)
	return joinURL(f.baseURL, cleaned), nil
}

// Delete removes the object.
func (f *FS) Delete(_ context.Context, key string) error {
	abs, err := f.safePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("blob: %s: %w", key, apperr.ErrNotFound)
		}
		return fmt.Errorf("blob: delete %s: %w", key, err)
	}
	return nil
}

// Handler serves stored objects. Mount it with the prefix stripped.
func (f *FS) Handler() http.Handler {
	files := http.FileServer(http.Dir(f.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
