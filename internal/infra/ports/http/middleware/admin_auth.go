package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/infra/appctx"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

// AdminAuthMiddleware пропускает только запросы с действующим токеном администратора
func AdminAuthMiddleware(admin usecase.AdminUsecase) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing or malformed token"})
			}

			adminID, err := admin.ParseToken(raw)
			if err != nil {
				log.Warn().Err(err).Str("path", c.Path()).Msg("admin token rejected")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			}

			c.SetRequest(
				c.Request().WithContext(
					appctx.WithAdminID(c.Request().Context(), adminID),
				),
			)

			log.Debug().Str(constant.AdminID, adminID).Str("path", c.Path()).Msg("admin request")

			return next(c)
		}
	}
}
