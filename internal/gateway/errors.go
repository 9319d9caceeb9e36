package gateway

import (
	"encoding/json"
	"fmt"
)

// RequestError is a non-2xx answer other than 401. Message is the backend's
// own text, or empty when it sent none so the caller can pick a fallback.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend request failed with status %d", e.Status)
	}
	return fmt.Sprintf("backend request failed with status %d: %s", e.Status, e.Message)
}

// AuthExpiredError is returned for every request the backend answered with
// 401. Ended reports whether this request was the one that ended the session.
type AuthExpiredError struct {
	Ended bool
}

func (e *AuthExpiredError) Error() string {
	return "session expired"
}

func backendMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}
