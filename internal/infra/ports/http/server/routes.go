package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/qrave1/VanishRoom/internal/infra/ports/http/handlers"
	"github.com/qrave1/VanishRoom/internal/infra/ports/http/middleware"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

// bodyLimit покрывает data URL вложения в истории и загрузках
const bodyLimit = "16M"

func New(
	adminUsecase usecase.AdminUsecase,
	ipLimiter *middleware.IPRateLimiter,
	roomHandler *handlers.RoomHandler,
	pairingHandler *handlers.PairingHandler,
	adminHandler *handlers.AdminHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.PrometheusMiddleware())
	e.Use(echomw.BodyLimit(bodyLimit))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/ws", wsHandler.Handle)

	api := e.Group("/api")
	api.Use(ipLimiter.Middleware())
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("/:code", roomHandler.GetRoom)
			rooms.DELETE("/:code", roomHandler.EndRoom)
			rooms.GET("/:code/messages", roomHandler.ListMessages)
			rooms.POST("/:code/uploads", roomHandler.PresignUpload)
		}

		pairing := api.Group("/pairing")
		{
			pairing.POST("", pairingHandler.Issue)
			pairing.POST("/redeem", pairingHandler.Redeem)
		}

		api.POST("/admin/login", adminHandler.Login)

		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(adminUsecase))
		{
			admin.POST("/rooms/:code/vanish", adminHandler.VanishRoom)
			admin.GET("/side-effects", adminHandler.SideEffects)
		}
	}

	return e
}
