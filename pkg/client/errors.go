package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrStreamInterrupted is reported when a streamed reply ends without a clean
// close. Text received before the interruption stays valid.
var ErrStreamInterrupted = errors.New("stream interrupted")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("visivo api: %d %s", e.Status, e.Message)
}

// decodeAPIError reads the {error} body, falling back to the status text.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(resp.StatusCode)
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	} else if text := strings.TrimSpace(string(body)); text != "" {
		msg = text
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
