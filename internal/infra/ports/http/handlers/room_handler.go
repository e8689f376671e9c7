package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/memory"
	"github.com/qrave1/VanishRoom/internal/infra/appctx"
	"github.com/qrave1/VanishRoom/internal/infra/ports/http/dto"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

type RoomHandler struct {
	roomUsecase      usecase.RoomUsecase
	messageUsecase   usecase.MessageUsecase
	lifecycleUsecase usecase.LifecycleUsecase
	registry         memory.ConnectionRegistry
}

func NewRoomHandler(
	roomUsecase usecase.RoomUsecase,
	messageUsecase usecase.MessageUsecase,
	lifecycleUsecase usecase.LifecycleUsecase,
	registry memory.ConnectionRegistry,
) *RoomHandler {
	return &RoomHandler{
		roomUsecase:      roomUsecase,
		messageUsecase:   messageUsecase,
		lifecycleUsecase: lifecycleUsecase,
		registry:         registry,
	}
}

func (h *RoomHandler) CreateRoom(c echo.Context) error {
	var req dto.CreateRoomRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}

	caller := appctx.ClientIP(c.Request().Context())
	if caller == "" {
		caller = c.RealIP()
	}

	room, err := h.roomUsecase.Create(c.Request().Context(), &input.CreateRoomInput{
		OwnerID:    req.OwnerID,
		Name:       req.Name,
		IsPublic:   req.IsPublic,
		TTLMinutes: req.TTLMinutes,
		Caller:     caller,
	})
	if err != nil {
		return respondError(c, "create room", err)
	}

	return c.JSON(http.StatusCreated, dto.CreateRoomResponse{
		RoomResponse: dto.NewRoomResponseFromModel(room, 0),
		Token:        room.Token,
	})
}

// GetRoom принимает как шестизначный код, так и slug
func (h *RoomHandler) GetRoom(c echo.Context) error {
	room, err := h.roomUsecase.Get(c.Request().Context(), c.Param("code"))
	if err != nil {
		return respondError(c, "get room", err)
	}

	return c.JSON(http.StatusOK, dto.NewRoomResponseFromModel(room, h.registry.Count(room.Code)))
}

func (h *RoomHandler) ListMessages(c echo.Context) error {
	var before time.Time
	if raw := c.QueryParam("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return respondError(c, "list messages", apperr.Invalid("before", "must be RFC3339"))
		}
		before = t
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return respondError(c, "list messages", apperr.Invalid("limit", "must be a number"))
		}
		limit = n
	}

	msgs, err := h.messageUsecase.History(c.Request().Context(), c.Param("code"), before, limit)
	if err != nil {
		return respondError(c, "list messages", err)
	}

	return c.JSON(http.StatusOK, dto.ListMessagesResponse{Messages: msgs})
}

func (h *RoomHandler) EndRoom(c echo.Context) error {
	var req dto.EndRoomRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}

	res, err := h.lifecycleUsecase.End(c.Request().Context(), c.Param("code"), req.OwnerID)
	if err != nil {
		return respondError(c, "end room", err)
	}

	return c.JSON(http.StatusOK, res)
}

func (h *RoomHandler) PresignUpload(c echo.Context) error {
	var req dto.UploadRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}

	upload, err := h.roomUsecase.PresignUpload(c.Request().Context(), c.Param("code"), req.UserID, req.FileName)
	if err != nil {
		return respondError(c, "presign upload", err)
	}

	return c.JSON(http.StatusOK, upload)
}
