package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{0, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{501, false},
		{429, false},
		{401, false},
		{403, false},
		{404, false},
		{200, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableStatusCode(tt.code))
		})
	}
}

func TestFromStatus(t *testing.T) {
	err := FromStatus(401, "http://jira/rest/api/2/search")
	assert.Equal(t, ErrorTypeAuth, err.Type)
	assert.Equal(t, 401, err.Code)
	assert.Contains(t, err.Error(), "status code: 401")
	assert.False(t, err.Retryable())

	err = FromStatus(503, "")
	assert.Equal(t, ErrorTypeServerError, err.Type)
	assert.True(t, err.Retryable())

	assert.Equal(t, ErrorTypeNotFound, FromStatus(404, "").Type)
	assert.Equal(t, ErrorTypeUnknown, FromStatus(418, "").Type)
}

func TestParsingErrorOmitsStatus(t *testing.T) {
	err := &Error{Type: ErrorTypeParsing, Message: "issue document has no key", Code: 200}
	assert.Equal(t, "jira parsing error: issue document has no key", err.Error())
}

func TestWrappedHelpers(t *testing.T) {
	apiErr := FromStatus(502, "u")
	wrapped := fmt.Errorf("fetch issue: %w", apiErr)

	assert.True(t, IsFatal(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, 502, StatusCode(wrapped))

	plain := fmt.Errorf("disk full")
	assert.False(t, IsFatal(plain))
	assert.False(t, IsRetryable(plain))
	assert.Equal(t, -1, StatusCode(plain))

	netErr := Network("u", fmt.Errorf("connection reset by peer"))
	assert.Equal(t, ErrorTypeNetwork, netErr.Type)
	assert.True(t, IsRetryable(netErr))
}
