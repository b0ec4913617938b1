package flagerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"limit", ErrObjectFlaggedEnough, http.StatusBadRequest},
		{"wrapped trust", fmt.Errorf("flagging blog.post#1: %w", ErrUserNotTrusted), http.StatusBadRequest},
		{"status change by non-staff", ErrNotAuthorizedForStatusChange, http.StatusBadRequest},
		{"invalid status", ErrInvalidStatus, http.StatusInternalServerError},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus(%v): expected %d, got %d", tt.err, tt.want, got)
			}
		})
	}
}

func TestUserFacing(t *testing.T) {
	if !UserFacing(fmt.Errorf("x: %w", ErrCommentNotAllowed)) {
		t.Error("Expected wrapped comment rejection to be user facing")
	}
	if UserFacing(ErrInvalidStatus) {
		t.Error("Expected invalid status to be a configuration error")
	}
}
