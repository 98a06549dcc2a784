// Package http provides the HTTP server of the review service.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xiaot623/settle/internal/hub"
	"github.com/xiaot623/settle/internal/service"
	v1 "github.com/xiaot623/settle/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server.
// It serves the run API, the progress websocket and, when metrics is not nil,
// the Prometheus scrape endpoint.
func NewServer(svc *service.Service, ws *hub.Server, metrics echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1Handler := v1.NewHandler(svc)
	v1Handler.RegisterRoutes(e)

	if ws != nil {
		e.GET("/v1/ws", ws.HandleWebSocket)
	}
	if metrics != nil {
		e.GET("/metrics", metrics)
	}

	return e
}
