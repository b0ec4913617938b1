// Package flagerr holds the error kinds returned by the flagging engine.
//
// Rejections a user can cause (limits, trust, comment policy) are returned as
// wrapped sentinels and are safe to show. Configuration errors (an invalid
// status code) indicate a deployment problem and should not be recovered from.
package flagerr

import (
	"errors"
	"net/http"
)

var (
	ErrModelNotFlaggable            = errors.New("this content type cannot be flagged")
	ErrUserNotTrusted               = errors.New("user is not trusted to flag content yet")
	ErrUserInactive                 = errors.New("only active, authenticated users can flag content")
	ErrObjectFlaggedEnough          = errors.New("this content has already been flagged enough")
	ErrAlreadyFlaggedByUser         = errors.New("you have already flagged this content")
	ErrCommentNotAllowed            = errors.New("comments are not allowed when flagging this content")
	ErrNotAuthorizedForStatusChange = errors.New("only staff can update a flag's status")
	ErrInvalidStatus                = errors.New("invalid flag status")
	ErrContentNotFound              = errors.New("content not found")
	ErrUnknownCreatorField          = errors.New("unknown creator field")
)

var userFacing = []error{
	ErrModelNotFlaggable,
	ErrUserNotTrusted,
	ErrUserInactive,
	ErrObjectFlaggedEnough,
	ErrAlreadyFlaggedByUser,
	ErrCommentNotAllowed,
	ErrNotAuthorizedForStatusChange,
	ErrContentNotFound,
	ErrUnknownCreatorField,
}

// UserFacing reports whether err is an expected rejection rather than a
// configuration or infrastructure failure.
func UserFacing(err error) bool {
	for _, target := range userFacing {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// HTTPStatus maps an engine error to the status code the web layer answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case UserFacing(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
