package controller

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	ctx "github.com/pooly/backend/internal/context"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/service"
	"github.com/sirupsen/logrus"
)

const credentialCookie = "token"

// requireIdentity authenticates the request credential and stores the
// resulting identity in the request context. The cookie wins over the
// Authorization header.
func requireIdentity(authService service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := authService.Authenticate(credentialFrom(c))
			if err != nil {
				return err
			}

			c.SetRequest(c.Request().WithContext(ctx.WithIdentity(c.Request().Context(), identity)))
			return next(c)
		}
	}
}

func credentialFrom(c echo.Context) string {
	if cookie, err := c.Cookie(credentialCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return ""
	}
	return token
}

func identityFrom(c echo.Context) (dto.Identity, error) {
	identity, ok := ctx.GetIdentityFromContext(c.Request().Context())
	if !ok {
		return dto.Identity{}, fmt.Errorf("%w: identity not found in context", dto.ErrUnauthenticated)
	}
	return identity, nil
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logrus.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}
