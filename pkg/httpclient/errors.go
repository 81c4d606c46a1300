package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

// EngineErrorResponse is the error envelope returned by the search engines.
// Solr reports {"error":{"msg":...,"code":400}}; Elasticsearch reports
// {"error":{"type":...,"reason":...},"status":400} and occasionally a bare
// string in place of the object.
type EngineErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

type engineErrorDetail struct {
	Msg    string `json:"msg"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an appropriate AppError. If the body carries an engine error
// envelope, its message is preserved. Otherwise a generic error is returned
// with the status code and raw body.
//
// The caller should only invoke this when resp.StatusCode indicates an error
// (i.e., not 2xx). The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, engineName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", engineName, resp.StatusCode, err)
	}

	if code, message, ok := decodeEngineError(bodyBytes); ok {
		return mapEngineError(resp.StatusCode, code, message, engineName)
	}

	// Fallback: unstructured error body.
	return fmt.Errorf("%s returned status %d: %s", engineName, resp.StatusCode, string(bodyBytes))
}

func decodeEngineError(body []byte) (code, message string, ok bool) {
	var envelope EngineErrorResponse
	if json.Unmarshal(body, &envelope) != nil || len(envelope.Error) == 0 || string(envelope.Error) == "null" {
		return "", "", false
	}

	var text string
	if json.Unmarshal(envelope.Error, &text) == nil {
		return "", text, true
	}

	var detail engineErrorDetail
	if json.Unmarshal(envelope.Error, &detail) != nil {
		return "", "", false
	}
	switch {
	case detail.Msg != "":
		return detail.Type, detail.Msg, true
	case detail.Reason != "":
		return detail.Type, detail.Reason, true
	default:
		return "", "", false
	}
}

// mapEngineError translates an engine's HTTP status and error message into
// an AppError. Rejected requests surface as upstream errors; a missing core
// or index means the engine is not usable.
func mapEngineError(status int, code, message, engineName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", engineName, message)

	switch {
	case status == http.StatusBadRequest:
		return apperrors.Upstream(qualifiedMsg)
	case status == http.StatusNotFound, status == http.StatusServiceUnavailable:
		return apperrors.Unavailable(qualifiedMsg)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", engineName, status, code, message)
	default:
		if code == "" {
			code = "UPSTREAM_ERROR"
		}
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
			Err:     apperrors.ErrUpstream,
		}
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
// Client errors are not retried and do not count against the circuit breaker.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
