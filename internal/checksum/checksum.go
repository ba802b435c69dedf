// Package checksum derives content addresses for uploaded files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ObjectKey returns a content-addressed key under prefix that keeps the
// extension of filename, e.g. "photos/p1/ab/ab12...ef.jpg". Identical
// uploads map to the same key.
func ObjectKey(prefix string, data []byte, filename string) string {
	sum := Sum(data)
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}
	return path.Join(prefix, sum[:2], sum+ext)
}
