package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

// Download is an opaque binary payload plus the name to save it under.
type Download struct {
	Data     []byte
	Filename string
}

// CreateBackup requests a full data export. The filename comes from the
// server's Content-Disposition when present, otherwise from the clock.
func (c *Client) CreateBackup(ctx context.Context) (*Download, error) {
	resp, err := c.send(ctx, request{op: "create backup", method: http.MethodPost, path: "/admin/backup"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("create backup: read payload: %w", err)
	}

	return &Download{
		Data:     data,
		Filename: c.backupFilename(resp.Header.Get("Content-Disposition")),
	}, nil
}

func (c *Client) backupFilename(disposition string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != "/" && name != "" {
				return name
			}
		}
	}
	return "backup-" + c.now().UTC().Format("2006-01-02T15-04-05Z") + ".sql"
}

// RestoreBackup uploads a dump as multipart form data under the "backup"
// field.
func (c *Client) RestoreBackup(ctx context.Context, filename string, src io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("backup", filepath.Base(filename))
	if err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("restore backup: read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return c.sendJSON(ctx, request{
		op:          "restore backup",
		method:      http.MethodPost,
		path:        "/admin/restore",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, nil)
}

// ResetDatabase wipes the server's data. Callers must confirm with a human
// before invoking it.
func (c *Client) ResetDatabase(ctx context.Context) error {
	return c.sendJSON(ctx, request{op: "reset database", method: http.MethodPost, path: "/admin/reset"}, nil)
}
