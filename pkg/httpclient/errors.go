package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/patetisho1/rabotim-com-sub003/pkg/errors"
)

// downstreamError mirrors the error envelope written by httputil.WriteError.
type downstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response and turns it into
// an AppError. Structured bodies keep their code, message and reason.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message, reason := "", string(body), ""
	var downstream downstreamError
	if json.Unmarshal(body, &downstream) == nil && downstream.Error != nil {
		code, message, reason = downstream.Error.Code, downstream.Error.Message, downstream.Error.Reason
	}
	return mapDownstreamError(resp.StatusCode, code, message, reason, serviceName)
}

func mapDownstreamError(status int, code, message, reason, serviceName string) error {
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return &apperrors.AppError{Code: "NOT_FOUND", Message: qualified, Status: status, Err: apperrors.ErrNotFound}
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(reason, qualified, nil)
	case status == http.StatusUnprocessableEntity:
		return apperrors.Unprocessable(reason, qualified, nil)
	case status >= 500:
		return apperrors.ServiceUnavailable(serviceName, fmt.Errorf("status %d %s: %s", status, code, message))
	default:
		return &apperrors.AppError{Code: code, Message: qualified, Status: status}
	}
}
