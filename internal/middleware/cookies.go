package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// SessionCookies writes the token cookies: HttpOnly, SameSite=Strict and
// Secure outside development.
type SessionCookies struct {
	Secure bool
	Domain string
	Path   string
}

func (s SessionCookies) SetAccess(c *gin.Context, token string, ttl time.Duration) {
	s.set(c, AccessCookie, token, int(ttl.Seconds()))
}

func (s SessionCookies) SetRefresh(c *gin.Context, token string, ttl time.Duration) {
	s.set(c, RefreshCookie, token, int(ttl.Seconds()))
}

func (s SessionCookies) ClearAccess(c *gin.Context) {
	s.set(c, AccessCookie, "", -1)
}

func (s SessionCookies) ClearAll(c *gin.Context) {
	s.set(c, AccessCookie, "", -1)
	s.set(c, RefreshCookie, "", -1)
}

func (s SessionCookies) set(c *gin.Context, name, value string, maxAge int) {
	path := s.Path
	if path == "" {
		path = "/"
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, maxAge, path, s.Domain, s.Secure, true)
}
