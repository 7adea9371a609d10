package genai

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// mapHTTPStatus folds a non-2xx provider response into the taxonomy.
func mapHTTPStatus(statusCode int, body []byte) *Error {
	message := strings.TrimSpace(string(body))
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Kind: KindAuth, Message: message}
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, Message: message}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &Error{Kind: KindInvalidRequest, Message: message}
	default:
		return &Error{Kind: KindAPI, StatusCode: statusCode, Message: message}
	}
}

// drainError reads the response body and maps the status to an Error.
// The caller still owns closing the body.
func drainError(resp *http.Response) *Error {
	body, _ := io.ReadAll(resp.Body)
	return mapHTTPStatus(resp.StatusCode, body)
}

// parseSize splits a "WIDTHxHEIGHT" size string. Empty input returns the
// given defaults.
func parseSize(size string, defaultWidth, defaultHeight int) (int, int, error) {
	if size == "" {
		return defaultWidth, defaultHeight, nil
	}
	parts := strings.SplitN(strings.ToLower(size), "x", 2)
	if len(parts) != 2 {
		return 0, 0, newError(KindInvalidRequest, "invalid size %q, expected WIDTHxHEIGHT", size)
	}
	width, werr := strconv.Atoi(parts[0])
	height, herr := strconv.Atoi(parts[1])
	if werr != nil || herr != nil || width <= 0 || height <= 0 {
		return 0, 0, newError(KindInvalidRequest, "invalid size %q, expected WIDTHxHEIGHT", size)
	}
	return width, height, nil
}

// dataURI renders a base64 payload as a data URI for providers that only
// accept image references by URL.
func dataURI(b64, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, b64)
}
