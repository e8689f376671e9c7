package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/VanishRoom/internal/infra/ports/http/dto"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

type PairingHandler struct {
	pairingUsecase usecase.PairingUsecase
}

func NewPairingHandler(pairingUsecase usecase.PairingUsecase) *PairingHandler {
	return &PairingHandler{pairingUsecase: pairingUsecase}
}

func (h *PairingHandler) Issue(c echo.Context) error {
	var req dto.IssuePairingRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}

	p, err := h.pairingUsecase.Issue(c.Request().Context(), req.RoomCode, req.UserID)
	if err != nil {
		return respondError(c, "issue pairing", err)
	}

	return c.JSON(http.StatusCreated, p)
}

func (h *PairingHandler) Redeem(c echo.Context) error {
	var req dto.RedeemPairingRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}

	p, err := h.pairingUsecase.Redeem(c.Request().Context(), req.Code)
	if err != nil {
		return respondError(c, "redeem pairing", err)
	}

	return c.JSON(http.StatusOK, p)
}
