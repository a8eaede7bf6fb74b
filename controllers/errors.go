package controllers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
)

const (
	actionFixInput   = "fix_input"
	actionRescan     = "rescan"
	actionRetryLater = "retry_later"
)

// respondServiceError translates a service error into the JSON envelope with
// the matching HTTP status and recovery hint.
func respondServiceError(c *gin.Context, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		svcErr = &services.Error{
			Kind:    services.KindStorageUnavailable,
			Code:    "internal",
			Message: "internal error",
			Err:     err,
		}
	}

	code, action := http.StatusInternalServerError, actionRetryLater
	switch svcErr.Kind {
	case services.KindInvalidInput:
		code, action = http.StatusBadRequest, actionFixInput
	case services.KindAuthFailure:
		code, action = http.StatusUnauthorized, actionRescan
		if errors.Is(svcErr, services.ErrTableMismatch) {
			code = http.StatusForbidden
		}
	case services.KindNotFound:
		code, action = http.StatusNotFound, actionFixInput
		if errors.Is(svcErr, services.ErrUnknownSession) {
			action = actionRescan
		}
	case services.KindConflict:
		code = http.StatusConflict
	case services.KindRateLimited:
		code = http.StatusTooManyRequests
	}

	body := utils.ErrorBody{Kind: string(svcErr.Kind), Reason: svcErr.Code, Action: action}
	if svcErr.RetryAfter > 0 {
		body.RetryAfterSeconds = int(math.Ceil(svcErr.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	}

	if code >= http.StatusInternalServerError {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Errorf("request failed: %v", err)
	}

	utils.RespondErrorBody(c, code, svcErr.Message, body)
}

// respondBindError reports a request body or parameter that failed to parse.
func respondBindError(c *gin.Context, err error) {
	utils.RespondErrorBody(c, http.StatusBadRequest, err.Error(), utils.ErrorBody{
		Kind:   string(services.KindInvalidInput),
		Reason: "invalid_input",
		Action: actionFixInput,
	})
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondBindError(c, errors.New("invalid "+name))
		return 0, false
	}
	return uint(id), true
}
