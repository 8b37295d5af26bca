package metabase

import "fmt"

// AuthError is a failed session authentication against a remote server.
// It carries the remote's status code and message so callers can surface
// them per server without parsing error strings.
type AuthError struct {
	Host       string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// QueryError is a failed or malformed query execution on a remote server.
type QueryError struct {
	Host       string
	StatusCode int
	Message    string
}

func (e *QueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("query execution failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("query execution failed: %s", e.Message)
}
