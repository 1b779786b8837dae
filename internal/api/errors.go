package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned without touching the network when a
// protected call is attempted with no stored credential.
var ErrUnauthenticated = errors.New("not authenticated")

// maxErrorBody caps how much of a failed response body is kept as detail.
const maxErrorBody = 4096

// Error is the uniform shape of every non-2xx response.
type Error struct {
	Status int
	Detail string
	// Op is the logical operation name, e.g. "list chats".
	Op string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s failed (status %d)", e.Op, e.Status)
}

// IsUnauthorized reports whether err means the credential is missing or was
// rejected by the server.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthenticated) {
		return true
	}
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// DetailOf returns the server-supplied detail carried by err, if any.
func DetailOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

func newError(op string, resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &Error{
		Status: resp.StatusCode,
		Detail: parseDetail(body),
		Op:     op,
	}
}

// parseDetail understands {"detail": "..."} and the validation form
// {"detail": [{"msg": "..."}]}; anything else is used as plain text.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil {
			return text
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(string(body))
}
