package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/infra/ports/http/dto"
)

// respondError отдаёт клиенту только безопасную причину; подробности остаются в логе
func respondError(c echo.Context, op string, err error) error {
	if apperr.IsClientError(err) {
		log.Debug().Err(err).Str(constant.Action, op).Msg("request rejected")
	} else {
		log.Error().Err(err).Str(constant.Action, op).Msg("request failed")
	}

	return c.JSON(apperr.HTTPStatus(err), dto.ErrorResponse{Error: apperr.Reason(err)})
}

func bindError(c echo.Context) error {
	return respondError(c, "bind", apperr.Invalid("body", "malformed request"))
}
