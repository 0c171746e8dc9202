package controller

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/service"
)

type Controllers interface {
	Event() EventController
	Question() QuestionController
	Live() LiveController
	Info() InfoController

	Route(e *echo.Echo)
}

type controllers struct {
	eventController    EventController
	questionController QuestionController
	liveController     LiveController
	infoController     InfoController
	authService        service.AuthService
	config             dto.Config
}

func NewControllers(services service.Services, config dto.Config) Controllers {
	cookies := newCookieJar(config)
	return &controllers{
		eventController:    newEventController(services.Event(), cookies),
		questionController: newQuestionController(services.Question(), services.Upvote()),
		liveController:     newLiveController(services.Broker(), config.CORSOrigins),
		infoController:     newInfoController(),
		authService:        services.Auth(),
		config:             config,
	}
}

func (c controllers) Event() EventController {
	return c.eventController
}

func (c controllers) Question() QuestionController {
	return c.questionController
}

func (c controllers) Live() LiveController {
	return c.liveController
}

func (c controllers) Info() InfoController {
	return c.infoController
}

func (c controllers) Route(e *echo.Echo) {
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("64K"))
	if len(c.config.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     c.config.CORSOrigins,
			AllowCredentials: true,
		}))
	}
	if c.config.StaticDir != "" {
		e.Use(middleware.StaticWithConfig(middleware.StaticConfig{
			Root:  c.config.StaticDir,
			HTML5: true,
			Skipper: func(ctx echo.Context) bool {
				path := ctx.Request().URL.Path
				return strings.HasPrefix(path, "/api") || path == "/health"
			},
		}))
	}

	e.GET("/health", c.infoController.Health)

	authenticated := requireIdentity(c.authService)

	api := e.Group("/api")
	api.GET("", c.infoController.Info)

	api.GET("/events", c.eventController.List)
	api.POST("/events", c.eventController.Create)
	api.GET("/events/:code", c.eventController.Get, authenticated)
	api.POST("/events/:code/join", c.eventController.Join)

	api.GET("/questions", c.questionController.List, authenticated)
	api.POST("/questions", c.questionController.Create, authenticated)
	api.DELETE("/questions/:id", c.questionController.Delete, authenticated)
	api.POST("/questions/:id/upvote", c.questionController.Upvote, authenticated)
	api.DELETE("/questions/:id/upvote", c.questionController.Revoke, authenticated)

	api.GET("/live", c.liveController.Subscribe, authenticated)
}
