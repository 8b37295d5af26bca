// Package metabase is an HTTP client for remote Metabase servers: session
// authentication, native SQL execution, database listing and a version probe.
//
// Session tokens are fetched fresh for every run and never cached; a token
// invalidated on the remote side can therefore never poison a later run.
package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/duynhne/metaboard/internal/core/domain"
)

const sessionHeader = "X-Metabase-Session"

// Client talks to remote Metabase instances. One client serves all hosts;
// per-call state is confined to arguments and return values.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client whose calls are bounded by the given timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NormalizeHost tolerates user-entered host values: a missing scheme gets
// https, trailing slashes are stripped.
func NormalizeHost(raw string) string {
	host := strings.TrimSpace(raw)
	if host == "" {
		return host
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return strings.TrimRight(host, "/")
}

// Authenticate obtains a session token from POST {host}/api/session.
// A non-success status or an unusable body returns *AuthError carrying the
// remote's message. Never retried; the caller decides.
func (c *Client) Authenticate(ctx context.Context, host, email, password string) (string, error) {
	host = NormalizeHost(host)

	payload, err := json.Marshal(map[string]string{
		"username": email,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/api/session", bytes.NewReader(payload))
	if err != nil {
		return "", &AuthError{Host: host, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Host: host, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{
			Host:       host,
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(body, "Authentication failed"),
		}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return "", &AuthError{Host: host, StatusCode: resp.StatusCode, Message: "malformed session response"}
	}

	return out.ID, nil
}

// ExecuteQuery runs sqlText as a native query against databaseID via
// POST {host}/api/dataset. The SQL is passed through verbatim; the remote
// is the sole authority on syntax. A success status whose body lacks either
// cols or rows is *QueryError, not an empty result; an empty rows list is a
// valid result.
func (c *Client) ExecuteQuery(ctx context.Context, host, token string, databaseID int, sqlText string) (*domain.ResultPayload, error) {
	host = NormalizeHost(host)

	payload, err := json.Marshal(map[string]any{
		"database": databaseID,
		"type":     "native",
		"native":   map[string]string{"query": sqlText},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/api/dataset", bytes.NewReader(payload))
	if err != nil {
		return nil, &QueryError{Host: host, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &QueryError{Host: host, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &QueryError{
			Host:       host,
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(body, "Query execution failed"),
		}
	}

	// Pointers distinguish a key that is absent from one that is present
	// and empty. Only absence is malformed.
	var out struct {
		Data *struct {
			Cols *[]domain.Column `json:"cols"`
			Rows *[][]any         `json:"rows"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &QueryError{Host: host, StatusCode: resp.StatusCode, Message: "Invalid response format from server"}
	}
	// Metabase reports execution errors with a success status and an
	// error field in the body.
	if out.Error != "" {
		return nil, &QueryError{Host: host, StatusCode: resp.StatusCode, Message: out.Error}
	}
	if out.Data == nil || out.Data.Cols == nil || out.Data.Rows == nil {
		return nil, &QueryError{Host: host, StatusCode: resp.StatusCode, Message: "Invalid response format from server"}
	}

	return &domain.ResultPayload{Cols: *out.Data.Cols, Rows: *out.Data.Rows}, nil
}

// ListDatabases returns the databases visible to the session via
// GET {host}/api/database. Newer Metabase wraps the list in {data: [...]};
// older versions return a bare array. Both are accepted.
func (c *Client) ListDatabases(ctx context.Context, host, token string) ([]domain.DatabaseInfo, error) {
	host = NormalizeHost(host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/database", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list databases on %s: %s", host, remoteMessage(body, resp.Status))
	}

	var wrapped struct {
		Data []domain.DatabaseInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}

	var bare []domain.DatabaseInfo
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, fmt.Errorf("list databases on %s: malformed response", host)
	}
	return bare, nil
}

// Version probes GET {host}/api/session/properties and returns the remote's
// reported Metabase version. Used by the connection test, not by fan-out runs.
func (c *Client) Version(ctx context.Context, host, token string) (string, error) {
	host = NormalizeHost(host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/session/properties", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("session properties on %s: %s", host, resp.Status)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	switch v := out["metabase-version"].(type) {
	case string:
		return v, nil
	case map[string]any:
		if tag, ok := v["tag"].(string); ok {
			return tag, nil
		}
	}
	return "unknown", nil
}

// remoteMessage extracts a human-readable message from a remote error body.
// Metabase uses {"message": ...} for auth errors and {"error": ...} for
// query errors; anything else falls back to the given default.
func remoteMessage(body []byte, fallback string) string {
	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err == nil {
		if out.Message != "" {
			return out.Message
		}
		if out.Error != "" {
			return out.Error
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		return s
	}
	return fallback
}
