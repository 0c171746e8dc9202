package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pooly/backend/internal/client"
	"github.com/pooly/backend/internal/controller"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/repository"
	"github.com/pooly/backend/internal/service"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config, err := dto.LoadConfig()
	if err != nil {
		logrus.Fatal(err)
	}
	configureLogging(config)

	db, err := repository.Open(config)
	if err != nil {
		logrus.Panic(err)
	}

	repositories := repository.NewRepositories(db)
	clients := client.NewClients(config)
	defer func() {
		if err := clients.Close(); err != nil {
			logrus.Errorf("Error closing clients: %v", err)
		}
	}()
	services := service.NewServices(repositories, clients)
	controllers := controller.NewControllers(services, config)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	controllers.Route(e)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.Infof("Listening on :%d", config.Port)
		if err := e.Start(fmt.Sprintf(":%d", config.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logrus.Errorf("Server stopped: %v", err)
	}
}

func configureLogging(config dto.Config) {
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		logrus.Warnf("Unknown LOG_LEVEL %q, using info", config.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if config.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
