package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation field", fmt.Errorf("send: %w", Invalid("content", "required")), "content: required"},
		{"locked", fmt.Errorf("send: %w", ErrRoomLocked), "room is locked"},
		{"rate", ErrRateLimited, "too many requests, slow down"},
		{"internal", errors.New("mongo: connection refused 10.0.0.3"), "internal error, retry later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Invalid("name", "too long")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(fmt.Errorf("end: %w", ErrForbidden)))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(ErrRateLimited))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(Invalid("x", "y")))
	assert.False(t, IsClientError(ErrUnavailable))
	assert.False(t, IsClientError(errors.New("db down")))
}
