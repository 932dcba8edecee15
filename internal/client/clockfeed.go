// clockfeed.go - WebSocket consumer for the server time feed
package client

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prodline/tracker/internal/engine"
)

// timeMessage mirrors the server feed payload.
type timeMessage struct {
	Action     string `json:"action"`
	ServerTime int64  `json:"serverTime"`
}

// WSClockFeed is an engine.ClockFeed driven by the backend's WebSocket
// time feed. Every received server timestamp is folded into the shared
// FeedClock, and subscribers tick once per interval off that clock. If
// the socket drops, ticks continue on the local clock until the feed
// reconnects.
type WSClockFeed struct {
	URL      string
	Clock    *engine.FeedClock
	Interval time.Duration
	Logger   zerolog.Logger
}

var _ engine.ClockFeed = (*WSClockFeed)(nil)

// NewWSClockFeed builds a feed for serverURL (http scheme is rewritten
// to ws) sharing clock with the engine.
func NewWSClockFeed(serverURL string, clock *engine.FeedClock, logger zerolog.Logger) *WSClockFeed {
	wsURL := strings.Replace(strings.TrimRight(serverURL, "/"), "http", "ws", 1)
	return &WSClockFeed{
		URL:      wsURL + "/api/ws/timer",
		Clock:    clock,
		Interval: time.Second,
		Logger:   logger,
	}
}

// Subscribe implements engine.ClockFeed.
func (f *WSClockFeed) Subscribe(fn func(time.Time)) (cancel func()) {
	interval := f.Interval
	if interval <= 0 {
		interval = time.Second
	}

	done := make(chan struct{})

	// Reader: keep a connection up, folding server timestamps into the
	// shared clock. Reconnects with capped backoff.
	go func() {
		backoff := time.Second
		for {
			select {
			case <-done:
				return
			default:
			}

			conn, _, err := websocket.DefaultDialer.Dial(f.URL, nil)
			if err != nil {
				f.Logger.Debug().Err(err).Str("url", f.URL).Msg("time feed dial failed, using local clock")
				select {
				case <-done:
					return
				case <-time.After(backoff):
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second

			f.readLoop(conn, done)
			conn.Close()
		}
	}()

	// Ticker: drive subscribers off the shared clock regardless of
	// connection state.
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn(f.Clock.Now())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (f *WSClockFeed) readLoop(conn *websocket.Conn, done <-chan struct{}) {
	// Close the socket when cancelled so ReadMessage unblocks
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-done:
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			f.Logger.Debug().Err(err).Msg("time feed connection lost")
			return
		}

		var msg timeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.ServerTime > 0 {
			f.Clock.SetServerTime(time.UnixMilli(msg.ServerTime).UTC())
		}
	}
}
