package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
)

// RequestLogger пишет каждый запрос в zerolog
func RequestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(
		middleware.RequestLoggerConfig{
			LogStatus:   true,
			LogURI:      true,
			LogMethod:   true,
			LogError:    true,
			LogLatency:  true,
			LogRemoteIP: true,
			HandleError: true,

			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				level := zerolog.InfoLevel
				if v.Error != nil || v.Status >= http.StatusInternalServerError {
					level = zerolog.ErrorLevel
				} else if v.Status >= http.StatusBadRequest {
					level = zerolog.WarnLevel
				}

				log.WithLevel(level).
					Err(v.Error).
					Int("status", v.Status).
					Str("uri", v.URI).
					Str("method", v.Method).
					Str("ip", v.RemoteIP).
					Dur(constant.Duration, v.Latency).
					Msg("HTTP request")

				return nil
			},
		},
	)
}
