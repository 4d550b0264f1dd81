package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker/v2"

	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

// DownstreamErrorResponse mirrors the error envelope returned by the
// storefront's collaborator services.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes a non-2xx response and translates it into an
// AppError. Structured envelopes keep their code and message.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.BadGateway(serviceName+" returned an unreadable response", err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message, serviceName)
	}
	return mapDownstreamError(resp.StatusCode, "", string(bodyBytes), serviceName)
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusGone:
		return apperrors.Gone(qualifiedMsg)
	case status == http.StatusUnprocessableEntity, status == http.StatusPaymentRequired:
		return apperrors.PaymentFailed(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	case status >= 500:
		return apperrors.BadGateway(qualifiedMsg, fmt.Errorf("status %d code %q", status, code))
	default:
		if code == "" {
			code = "UPSTREAM_REJECTED"
		}
		return apperrors.New(code, qualifiedMsg, status, apperrors.ErrInvalidInput)
	}
}

// TranslateError maps a transport-level failure from Do into an AppError:
// an open breaker is 503, a 5xx or network failure is 502. Context
// cancellation is returned unchanged.
func TranslateError(err error, serviceName string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.ServiceUnavailable(serviceName + " is temporarily unavailable")
	}
	var srvErr *serverError
	if errors.As(err, &srvErr) {
		if srvErr.status == http.StatusServiceUnavailable {
			return apperrors.ServiceUnavailable(serviceName + " is temporarily unavailable")
		}
		return apperrors.BadGateway(serviceName+" failed", err)
	}
	return apperrors.BadGateway(serviceName+" could not be reached", err)
}

// DecodeJSON decodes a 2xx response into out, or translates the error body.
// The body is always closed.
func DecodeJSON(resp *http.Response, out any, serviceName string) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.BadGateway(serviceName+" returned malformed JSON", err)
	}
	return nil
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
