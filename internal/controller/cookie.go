package controller

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pooly/backend/internal/dto"
)

type cookieJar struct {
	secure bool
	ttl    time.Duration
}

func newCookieJar(config dto.Config) cookieJar {
	return cookieJar{secure: config.CookieSecure, ttl: config.CredentialTTL}
}

// setCredential hands the credential to the browser; it lives as long as the token.
func (j cookieJar) setCredential(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     credentialCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(j.ttl.Seconds()),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
