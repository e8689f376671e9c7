package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/VanishRoom/internal/application/outbox"
	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/infra/appctx"
	"github.com/qrave1/VanishRoom/internal/infra/ports/http/dto"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

// DeadLetterSource - очередь побочных эффектов, доступная администратору для диагностики
type DeadLetterSource interface {
	Depth() int
	DeadLetters() []outbox.DeadLetter
}

type AdminHandler struct {
	adminUsecase     usecase.AdminUsecase
	lifecycleUsecase usecase.LifecycleUsecase
	sideEffects      DeadLetterSource
}

func NewAdminHandler(
	adminUsecase usecase.AdminUsecase,
	lifecycleUsecase usecase.LifecycleUsecase,
	sideEffects DeadLetterSource,
) *AdminHandler {
	return &AdminHandler{
		adminUsecase:     adminUsecase,
		lifecycleUsecase: lifecycleUsecase,
		sideEffects:      sideEffects,
	}
}

func (h *AdminHandler) Login(c echo.Context) error {
	var req dto.AdminLoginRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}

	token, expiresAt, err := h.adminUsecase.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respondError(c, "admin login", err)
	}

	return c.JSON(http.StatusOK, dto.AdminLoginResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *AdminHandler) VanishRoom(c echo.Context) error {
	adminID, ok := appctx.AdminID(c.Request().Context())
	if !ok {
		return respondError(c, "vanish room", apperr.ErrForbidden)
	}

	res, err := h.lifecycleUsecase.Vanish(c.Request().Context(), c.Param("code"), adminID)
	if err != nil {
		return respondError(c, "vanish room", err)
	}

	return c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) SideEffects(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"depth":       h.sideEffects.Depth(),
		"deadLetters": h.sideEffects.DeadLetters(),
	})
}
