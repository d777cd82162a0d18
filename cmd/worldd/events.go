package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"worldvault.gg/internal/engine"
)

// eventHub fans the registry's single lifecycle stream out to any number
// of websocket subscribers. Slow subscribers drop events rather than
// backpressure the engine.
type eventHub struct {
	log *zap.Logger

	mu   sync.Mutex
	subs map[chan engine.Event]struct{}
}

func newEventHub(log *zap.Logger) *eventHub {
	return &eventHub{log: log, subs: map[chan engine.Event]struct{}{}}
}

func (h *eventHub) run(ctx context.Context, src <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-src:
			h.mu.Lock()
			for ch := range h.subs {
				select {
				case ch <- ev:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *eventHub) subscribe() chan engine.Event {
	ch := make(chan engine.Event, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan engine.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *apiServer) handleEvents(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.log.Warn("event stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	// Reader only drains control frames; clients never send data.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
