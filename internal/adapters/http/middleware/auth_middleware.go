package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type Mode string

const (
	ModeNone    Mode = "none"
	ModeAPIKey  Mode = "api_key"
	ModeCognito Mode = "cognito"
)

func ParseAuthMode(raw string) (Mode, error) {
	mode := Mode(strings.TrimSpace(raw))
	switch mode {
	case "":
		return ModeNone, nil
	case ModeNone, ModeAPIKey, ModeCognito:
		return mode, nil
	default:
		return "", errors.New("invalid auth mode")
	}
}

// AuthMiddleware verifies the caller in cognito mode. In none and api_key
// modes the request is trusted as authenticated by the gateway in front.
func AuthMiddleware(mode Mode, cognito echo.MiddlewareFunc) (echo.MiddlewareFunc, error) {
	if _, err := ParseAuthMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == ModeCognito && cognito == nil {
		return nil, errors.New("cognito middleware is required when AUTH_MODE=cognito")
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch mode {
			case ModeNone, ModeAPIKey, "":
				return next(c)
			case ModeCognito:
				return cognito(next)(c)
			default:
				return echo.NewHTTPError(http.StatusInternalServerError, "invalid auth mode")
			}
		}
	}, nil
}
