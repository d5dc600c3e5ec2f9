package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/callrelay/internal/registry"
)

const (
	eventsWriteTimeout = 10 * time.Second
	eventsPongWait     = 60 * time.Second
	eventsPingPeriod   = eventsPongWait * 9 / 10
)

type callEventMessage struct {
	Type string           `json:"type"`
	Call registry.Session `json:"call"`
	At   time.Time        `json:"at"`
}

// handleCallEvents streams registry lifecycle events over a websocket. The
// first frames are a snapshot of every known call.
func (s *Server) handleCallEvents(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := s.registry.Subscribe(64)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.EventSubscribers.Inc()
		defer s.metrics.EventSubscribers.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: only control frames are expected; any error ends the feed.
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		return nil
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
		return conn.WriteJSON(msg)
	}

	now := time.Now().UTC()
	for _, sess := range s.registry.List() {
		if err := write(callEventMessage{Type: "snapshot", Call: *sess, At: now}); err != nil {
			return
		}
	}

	ping := time.NewTicker(eventsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(callEventMessage{Type: ev.Type, Call: ev.Session, At: time.Now().UTC()}); err != nil {
				s.logger.Debug("call event write failed", slog.Any("error", err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
