package http

import "github.com/labstack/echo/v4"

// Handler is implemented by route groups that attach themselves to the
// query server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
