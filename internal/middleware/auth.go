package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"parchment/internal/models"
	"parchment/internal/response"
)

const currentUserKey = "current_user"

type Authenticator interface {
	AuthenticateRequest(ctx context.Context, accessToken string) (models.PublicUser, error)
}

// Auth resolves the access token from the accessToken cookie, falling back to
// an Authorization Bearer header. On failure the access cookie is cleared.
func Auth(auth Authenticator, cookies SessionCookies) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := AccessToken(c)

		user, err := auth.AuthenticateRequest(c.Request.Context(), token)
		if err != nil {
			if token != "" {
				cookies.ClearAccess(c)
			}
			response.Error(c, err)
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

func AccessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie != "" {
		return cookie
	}
	authHeader := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func CurrentUser(c *gin.Context) (models.PublicUser, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.PublicUser{}, false
	}
	user, ok := v.(models.PublicUser)
	return user, ok
}
