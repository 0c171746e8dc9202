package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type InfoController interface {
	Info(c echo.Context) error
	Health(c echo.Context) error
}

type infoController struct{}

func newInfoController() InfoController {
	return &infoController{}
}

func (i *infoController) Info(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"name":    "pooly",
	})
}

func (i *infoController) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"status":  "ok",
	})
}
