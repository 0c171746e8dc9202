package controller

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 60 * time.Second
	// a client that answers no ping within this window is gone
	pongWait = pingInterval + writeTimeout
)

type LiveController interface {
	Subscribe(c echo.Context) error
}

type liveController struct {
	eventBroker service.EventBroker
	upgrader    *websocket.Upgrader
}

func newLiveController(eventBroker service.EventBroker, allowedOrigins []string) LiveController {
	return &liveController{
		eventBroker: eventBroker,
		upgrader: &websocket.Upgrader{
			CheckOrigin: checkOrigin(allowedOrigins),
		},
	}
}

// Subscribe upgrades to a websocket streaming live updates of the caller's
// event. Topics come from the comma separated topics query parameter, all
// topics when absent. The subscriptions end when the client goes away.
func (l *liveController) Subscribe(c echo.Context) error {
	identity, err := identityFrom(c)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	updates, err := l.eventBroker.Watch(watchCtx, identity, parseTopics(c.QueryParam("topics"))...)
	if err != nil {
		return err
	}

	wc, err := l.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already answered the client
		logrus.Warnf("Live upgrade failed for participant %s: %v", identity.ParticipantID, err)
		return nil
	}

	logrus.Infof("Participant %s subscribed to live updates of event %s", identity.ParticipantID, identity.EventCode)

	done := make(chan struct{})
	go func() {
		defer close(done)
		writeUpdates(wc, updates)
	}()

	if err := readUntilClosed(wc, pongWait); err != nil {
		logrus.Warnf("Live read failed for participant %s: %v", identity.ParticipantID, err)
	}
	cancel()
	<-done

	logrus.Infof("Participant %s left live updates of event %s", identity.ParticipantID, identity.EventCode)
	return nil
}

func writeUpdates(wc *websocket.Conn, updates <-chan dto.LiveUpdate) {
	defer wc.Close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				wc.SetWriteDeadline(time.Now().Add(writeTimeout))
				wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readUntilClosed discards client frames; its only job is to notice the
// client going away. Every frame or pong extends the read deadline by
// pongWait, so a half-open connection ends once the deadline passes.
func readUntilClosed(wc *websocket.Conn, pongWait time.Duration) error {
	extend := func(string) error {
		return wc.SetReadDeadline(time.Now().Add(pongWait))
	}
	wc.SetPongHandler(extend)
	if err := extend(""); err != nil {
		return err
	}

	for {
		if _, _, err := wc.NextReader(); err != nil {
			var closeErr *websocket.CloseError
			var netErr net.Error
			if errors.As(err, &closeErr) || errors.Is(err, net.ErrClosed) ||
				(errors.As(err, &netErr) && netErr.Timeout()) {
				return nil
			}
			return err
		}
		if err := extend(""); err != nil {
			return err
		}
	}
}

func parseTopics(raw string) []dto.Topic {
	var topics []dto.Topic
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			topics = append(topics, dto.Topic(part))
		}
	}
	return topics
}

// checkOrigin accepts same-host origins and the configured CORS origins.
func checkOrigin(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range allowedOrigins {
			if allowed == "*" || strings.EqualFold(allowed, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
