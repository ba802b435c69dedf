package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/staykeep/internal/blob"
	"github.com/starford/staykeep/internal/client"
)

// PhotoUploader stores a photo and reports where it is served from;
// *client.Client implements it.
type PhotoUploader interface {
	UploadPhoto(ctx context.Context, propertyID, filename string, r io.Reader) (client.Photo, error)
}

var (
	mimeToExt = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

func (s *Server) uploadPhoto(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, ext, err := decodeDataURI(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > blob.MaxObjectSize {
		return errorf("photo too large: %d bytes (max %d)", len(data), blob.MaxObjectSize), nil
	}
	if detected := mimeToExt[http.DetectContentType(data)]; detected != ext {
		return errorf("content does not match its declared type %s", ext), nil
	}

	filename := sanitizeFilename(req.GetString("filename", ""), ext)
	photo, err := s.deps.Photos.UploadPhoto(ctx, req.GetString("property_id", ""), filename, bytes.NewReader(data))
	if err != nil {
		return errorf("upload failed: %v", err), nil
	}
	out, _ := json.Marshal(photo)
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("expected a data: URI")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

// sanitizeFilename strips path separators and unsafe characters and forces
// the extension to match the content.
func sanitizeFilename(name, ext string) string {
	name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "_" {
		name = uuid.NewString()
	}
	return name + ext
}
