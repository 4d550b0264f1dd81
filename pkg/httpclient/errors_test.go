package httpclient

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

func fakeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestParseResponseError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantCode   string
		sentinel   error
	}{
		{"not found", 404, `{"error":{"code":"NOT_FOUND","message":"product p-1"}}`, 404, "NOT_FOUND", apperrors.ErrNotFound},
		{"bad request", 400, `{"error":{"code":"INVALID_INPUT","message":"bad address"}}`, 400, "INVALID_INPUT", apperrors.ErrInvalidInput},
		{"conflict", 409, `{"error":{"code":"CONFLICT","message":"duplicate order"}}`, 409, "CONFLICT", apperrors.ErrConflict},
		{"forbidden", 403, `{"error":{"code":"FORBIDDEN","message":"no"}}`, 401, "UNAUTHORIZED", apperrors.ErrUnauthorized},
		{"payment declined", 422, `{"error":{"code":"CARD_DECLINED","message":"declined"}}`, 422, "PAYMENT_FAILED", apperrors.ErrPaymentFailed},
		{"unavailable", 503, `{"error":{"code":"MAINTENANCE","message":"later"}}`, 503, "SERVICE_UNAVAILABLE", apperrors.ErrServiceUnavail},
		{"server error", 500, `{"error":{"code":"INTERNAL_ERROR","message":"boom"}}`, 502, "UPSTREAM_ERROR", apperrors.ErrUpstream},
		{"unstructured", 502, `<html>bad gateway</html>`, 502, "UPSTREAM_ERROR", apperrors.ErrUpstream},
		{"null error", 404, `{"error":null}`, 404, "NOT_FOUND", apperrors.ErrNotFound},
		{"other 4xx", 429, `{"error":{"code":"RATE_LIMITED","message":"slow down"}}`, 429, "RATE_LIMITED", apperrors.ErrInvalidInput},
		{"other 4xx empty", 418, ``, 418, "UPSTREAM_REJECTED", apperrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseResponseError(fakeResponse(tt.status, tt.body), "order-service")
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantStatus, appErr.Status)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, DecodeJSON(fakeResponse(201, `{"id":"ord-1"}`), &out, "order-service"))
	assert.Equal(t, "ord-1", out.ID)

	require.NoError(t, DecodeJSON(fakeResponse(204, ``), nil, "order-service"))

	err := DecodeJSON(fakeResponse(200, `{`), &out, "order-service")
	assert.ErrorIs(t, err, apperrors.ErrUpstream)

	err = DecodeJSON(fakeResponse(404, `{"error":{"code":"NOT_FOUND","message":"x"}}`), &out, "order-service")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(400))
	assert.True(t, IsClientError(499))
	assert.False(t, IsClientError(500))
	assert.False(t, IsClientError(200))
}
