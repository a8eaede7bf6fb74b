package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/valtrilabs/cafe-backend/utils"
)

const (
	SessionTokenHeader = "X-Session-Token"
	sessionTokenKey    = "sessionToken"
)

// RequireSessionToken reads the table session token from the X-Session-Token
// header or the token query parameter and stores it for SessionToken.
func RequireSessionToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(SessionTokenHeader)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			utils.RespondErrorBody(c, http.StatusUnauthorized, "session token missing", utils.ErrorBody{
				Kind:   "auth_failure",
				Reason: "session_not_found",
				Action: "rescan",
			})
			c.Abort()
			return
		}
		c.Set(sessionTokenKey, token)
		c.Next()
	}
}

func SessionToken(c *gin.Context) string {
	return c.GetString(sessionTokenKey)
}
