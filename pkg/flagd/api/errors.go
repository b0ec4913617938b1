package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flagd/pkg/flagd/flagerr"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{flagerr.ErrModelNotFlaggable, "model_not_flaggable"},
	{flagerr.ErrUserNotTrusted, "user_not_trusted"},
	{flagerr.ErrUserInactive, "user_inactive"},
	{flagerr.ErrObjectFlaggedEnough, "object_flagged_enough"},
	{flagerr.ErrAlreadyFlaggedByUser, "already_flagged_by_user"},
	{flagerr.ErrCommentNotAllowed, "comment_not_allowed"},
	{flagerr.ErrNotAuthorizedForStatusChange, "not_authorized_for_status_change"},
	{flagerr.ErrContentNotFound, "content_not_found"},
	{flagerr.ErrUnknownCreatorField, "unknown_creator_field"},
}

func errorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ""
}

// writeError answers with the status flagerr assigns to err. Unexpected
// errors are logged and hidden from the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := flagerr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "err", err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errorCode(err)})
}
