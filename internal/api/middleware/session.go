package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionKey is the gin context key holding the session id
const SessionKey = "session_id"

const sessionCookie = "ttoura_session"

// Session resolves the caller's session id from the session cookie or the
// X-Session-ID header, minting a new id (and setting the cookie) when
// neither is present.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Session-ID")
		if id == "" {
			if cookie, err := c.Cookie(sessionCookie); err == nil {
				id = cookie
			}
		}
		if id == "" {
			id = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(sessionCookie, id, 60*60*24*30, "/", "", false, true)
		}

		c.Set(SessionKey, id)
		c.Next()
	}
}

// SessionID returns the session id resolved by Session
func SessionID(c *gin.Context) string {
	return c.GetString(SessionKey)
}
