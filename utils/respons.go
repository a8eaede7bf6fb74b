package utils

import (
	"github.com/gin-gonic/gin"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody tells the client how to recover: fix_input, rescan or retry_later.
type ErrorBody struct {
	Kind              string `json:"kind"`
	Reason            string `json:"reason"`
	Action            string `json:"action"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: err.Error(),
		Data:    nil,
	})
}

func RespondErrorBody(c *gin.Context, code int, message string, body ErrorBody) {
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: message,
		Error:   &body,
	})
}
