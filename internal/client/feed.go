package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/starford/staykeep/internal/entity"
)

var (
	_ entity.Feed    = (*Client)(nil)
	_ entity.Claimer = (*Client)(nil)
)

// Subscribe opens the server's event stream filtered to tables. The channel
// is closed when ctx ends or the connection drops; callers resubscribe.
// Events that are not entity changes are skipped.
func (c *Client) Subscribe(ctx context.Context, tables ...string) (<-chan entity.Change, error) {
	q := url.Values{}
	if len(tables) > 0 {
		q.Set("tables", strings.Join(tables, ","))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "events", q, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	out := make(chan entity.Change, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		readEvents(resp.Body, func(name string, data []byte) bool {
			var ch entity.Change
			if err := json.Unmarshal(data, &ch); err != nil || ch.Table == "" || ch.EventName() != name {
				return true
			}
			select {
			case out <- ch:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out, nil
}

// readEvents parses an SSE stream, calling fn per event until fn returns
// false or the stream ends.
func readEvents(r io.Reader, fn func(name string, data []byte) bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var (
		name string
		data bytes.Buffer
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 && !fn(name, data.Bytes()) {
				return
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// Comment, used for keep-alives.
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

// Claim asks the server for the one-time claim on key. owner is ignored;
// the server records the authenticated caller.
func (c *Client) Claim(ctx context.Context, key, _ string) (bool, error) {
	status, err := c.do(ctx, http.MethodPost, "migration-claims/"+url.PathEscape(key), nil, nil, nil)
	if status == http.StatusConflict {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Release gives a claim back.
func (c *Client) Release(ctx context.Context, key string) error {
	_, err := c.do(ctx, http.MethodDelete, "migration-claims/"+url.PathEscape(key), nil, nil, nil)
	return err
}

// Photo is an uploaded image.
type Photo struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int    `json:"size"`
}

// UploadPhoto sends an image and returns where it is served from.
func (c *Client) UploadPhoto(ctx context.Context, propertyID, filename string, r io.Reader) (Photo, error) {
	if filename == "" {
		return Photo{}, errors.New("client: filename is required")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if propertyID != "" {
		if err := mw.WriteField("property_id", propertyID); err != nil {
			return Photo{}, fmt.Errorf("client: write form: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Photo{}, fmt.Errorf("client: write form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return Photo{}, fmt.Errorf("client: read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Photo{}, fmt.Errorf("client: write form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodPost, "photos", nil, &buf)
	if err != nil {
		return Photo{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var p Photo
	_, err = c.send(req, &p)
	return p, err
}
