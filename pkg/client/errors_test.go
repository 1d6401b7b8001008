package client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "service error with status",
			err:  &Error{Class: ErrorClassService, StatusCode: 500, Message: "boom"},
			want: "web service service error (status 500): boom",
		},
		{
			name: "auth error with hint",
			err:  &Error{Class: ErrorClassAuth, StatusCode: 401, Message: "not authorized", Hint: "sign in"},
			want: "web service auth error (status 401): not authorized. sign in",
		},
		{
			name: "config error wrapping cause",
			err:  configError("credentials", errors.New("missing")),
			want: "web service config error: credentials: missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("page 2: %w", &Error{Class: ErrorClassNetwork, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorClassNetwork, ClassOf(err))
	assert.True(t, IsNetwork(err))
	assert.False(t, IsAuth(err))
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, ErrorClass(""), ClassOf(errors.New("plain")))
	assert.Equal(t, ErrorClass(""), ClassOf(nil))
	assert.True(t, IsConfig(configError("x", nil)))
	assert.True(t, IsAuth(&Error{Class: ErrorClassAuth}))
	assert.True(t, IsService(&Error{Class: ErrorClassService}))
}

func TestAuthHint(t *testing.T) {
	assert.Equal(t, hintWindows, authHint("windows"))
	assert.Equal(t, hintUnix, authHint("linux"))
	assert.Equal(t, hintUnix, authHint("darwin"))
}
