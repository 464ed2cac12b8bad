package frappe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Error is a failure reported by the platform
type Error struct {
	StatusCode int
	ExcType    string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.ExcType != "" {
		return fmt.Sprintf("%s (HTTP %d)", e.ExcType, e.StatusCode)
	}
	return fmt.Sprintf("platform request failed with HTTP %d", e.StatusCode)
}

// IsNotFound reports whether err means the requested document does not exist
func IsNotFound(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == http.StatusNotFound || fe.ExcType == "DoesNotExistError"
}

// IsPermissionDenied reports whether the platform refused the call for the API user
func IsPermissionDenied(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == http.StatusForbidden || fe.ExcType == "PermissionError"
}

// errorBody is the subset of the platform's error response we read
type errorBody struct {
	ExcType        string      `json:"exc_type"`
	Exception      string      `json:"exception"`
	ServerMessages string      `json:"_server_messages"`
	Message        interface{} `json:"message"`
}

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// parseError builds an *Error from a non-2xx response body
func parseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" || len(text) > 500 {
			text = http.StatusText(status)
		}
		e.Message = text
		return e
	}

	e.ExcType = eb.ExcType

	if msgs := serverMessages(eb.ServerMessages); len(msgs) > 0 {
		e.Message = strings.Join(msgs, "; ")
	} else if eb.Exception != "" {
		e.Message = trimExceptionPrefix(eb.Exception)
	} else if s, ok := eb.Message.(string); ok && s != "" {
		e.Message = s
	} else {
		e.Message = http.StatusText(status)
	}

	return e
}

// serverMessages decodes _server_messages: a JSON string holding a list of
// JSON strings, each an object with a "message" field
func serverMessages(raw string) []string {
	if raw == "" {
		return nil
	}

	var encoded []string
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		return nil
	}

	msgs := make([]string, 0, len(encoded))
	for _, item := range encoded {
		var m struct {
			Message string `json:"message"`
		}
		text := item
		if err := json.Unmarshal([]byte(item), &m); err == nil && m.Message != "" {
			text = m.Message
		}
		text = strings.TrimSpace(htmlTag.ReplaceAllString(text, ""))
		if text != "" {
			msgs = append(msgs, text)
		}
	}
	return msgs
}

// trimExceptionPrefix turns "frappe.exceptions.ValidationError: msg" into "msg"
func trimExceptionPrefix(exc string) string {
	if i := strings.Index(exc, ": "); i > 0 && !strings.Contains(exc[:i], " ") {
		return strings.TrimSpace(exc[i+2:])
	}
	return exc
}
