// timefeed.go - Authoritative server time feed over SSE and WebSocket
//
// Clients drive their countdown off server time so a skewed terminal
// clock cannot stretch or shrink a session. The same message shape is
// used on both transports.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Time feed message actions
const (
	ActionServerTime = "serverTime"
	ActionConnected  = "connected"
)

// TimeMessage is one tick of the server time feed
type TimeMessage struct {
	Action     string `json:"action"`
	ServerTime int64  `json:"serverTime"` // Unix milliseconds, UTC
}

// TimeFeedHandlerImpl implements the TimeFeedHandler interface
type TimeFeedHandlerImpl struct {
	interval time.Duration
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewTimeFeedHandler creates a time feed handler ticking at interval
func NewTimeFeedHandler(interval time.Duration, logger zerolog.Logger) TimeFeedHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &TimeFeedHandlerImpl{
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Terminals connect from their own origin
				return true
			},
		},
		logger: logger,
	}
}

func nowMessage() TimeMessage {
	return TimeMessage{
		Action:     ActionServerTime,
		ServerTime: time.Now().UTC().UnixMilli(),
	}
}

// HandleTimeStream streams server time via SSE, one event per tick
func (h *TimeFeedHandlerImpl) HandleTimeStream(c echo.Context) error {
	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	// Send the current time immediately so the client syncs without
	// waiting a full tick
	if err := writeSSE(c, nowMessage()); err != nil {
		return nil
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			if err := writeSSE(c, nowMessage()); err != nil {
				return nil
			}
		}
	}
}

func writeSSE(c echo.Context, msg TimeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// HandleTimeSocket streams server time over a WebSocket connection
func (h *TimeFeedHandlerImpl) HandleTimeSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	h.logger.Debug().Str("remote", c.RealIP()).Msg("time feed client connected")

	if err := ws.WriteJSON(TimeMessage{Action: ActionConnected, ServerTime: time.Now().UTC().UnixMilli()}); err != nil {
		return nil
	}

	// Drain incoming frames so pings and close frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug().Err(err).Msg("time feed connection error")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debug().Str("remote", c.RealIP()).Msg("time feed client disconnected")
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			if err := ws.WriteJSON(nowMessage()); err != nil {
				return nil
			}
		}
	}
}
