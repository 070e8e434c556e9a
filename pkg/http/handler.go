package http

import "github.com/labstack/echo/v4"

// Handler is anything that mounts routes on the server's Echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
