package companionsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
)

var (
	// ErrNoSession is returned when no tokens are stored.
	ErrNoSession = errors.New("companionsdk: not logged in")

	// ErrSessionExpired is returned when a refresh failed. The stored tokens
	// are gone and the user has to log in again.
	ErrSessionExpired = errors.New("companionsdk: session expired")

	// ErrNoTokens is returned when a login or refresh response carried no
	// access token.
	ErrNoTokens = errors.New("companionsdk: response carried no tokens")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string

	// Details holds per-field messages on validation failures.
	Details map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// ValidationError is returned before any request is sent when client-side
// checks fail.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// errorBody is the API's error envelope. Older endpoints use "error" instead
// of "code" and "details" instead of "errors".
type errorBody struct {
	Code    string            `json:"code"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
	Details map[string]string `json:"details"`
}

// parseErrorResponse turns an error response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.Code
		if apiErr.Code == "" {
			apiErr.Code = eb.Error
		}
		if eb.Message != "" {
			apiErr.Message = eb.Message
		}
		apiErr.Details = eb.Errors
		if apiErr.Details == nil {
			apiErr.Details = eb.Details
		}
	} else if msg := strings.TrimSpace(string(body)); msg != "" && len(msg) < 256 {
		apiErr.Message = msg
	}

	return apiErr
}
