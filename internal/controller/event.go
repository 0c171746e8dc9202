package controller

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/service"
)

type EventController interface {
	List(c echo.Context) error
	Get(c echo.Context) error
	Create(c echo.Context) error
	Join(c echo.Context) error
}

type eventController struct {
	eventService service.EventService
	cookies      cookieJar
}

func newEventController(eventService service.EventService, cookies cookieJar) EventController {
	return &eventController{
		eventService: eventService,
		cookies:      cookies,
	}
}

type createEventRequest struct {
	Name string `json:"name"`
}

type eventsResponse struct {
	Success bool            `json:"success"`
	Events  []dto.EventView `json:"events"`
}

type eventResponse struct {
	Success bool          `json:"success"`
	Event   dto.EventView `json:"event"`
	Token   string        `json:"token,omitempty"`
}

func (e *eventController) List(c echo.Context) error {
	events, err := e.eventService.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, eventsResponse{Success: true, Events: events})
}

func (e *eventController) Get(c echo.Context) error {
	identity, err := identityFrom(c)
	if err != nil {
		return err
	}

	event, err := e.eventService.Get(c.Request().Context(), identity, c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, eventResponse{Success: true, Event: event})
}

func (e *eventController) Create(c echo.Context) error {
	var request createEventRequest
	if err := c.Bind(&request); err != nil {
		return fmt.Errorf("%w: %v", dto.ErrInvalidInput, err)
	}

	event, credential, err := e.eventService.Create(c.Request().Context(), request.Name)
	if err != nil {
		return err
	}

	e.cookies.setCredential(c, credential.Token)
	return c.JSON(http.StatusCreated, eventResponse{Success: true, Event: event, Token: credential.Token})
}

func (e *eventController) Join(c echo.Context) error {
	event, credential, err := e.eventService.Join(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}

	e.cookies.setCredential(c, credential.Token)
	return c.JSON(http.StatusOK, eventResponse{Success: true, Event: event, Token: credential.Token})
}
