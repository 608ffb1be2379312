package httpadapter

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = eventPongWait * 9 / 10
)

type eventType string

const (
	eventSnapshot eventType = "snapshot"
	eventUpdate   eventType = "update"
)

type statusEvent struct {
	Type eventType   `json:"type"`
	Task domain.Task `json:"task"`
}

// streamEvents pushes status updates for one task over a websocket until
// the task reaches a confirmed terminal status or the peer goes away.
func (rt *Router) streamEvents(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("events_upgrade_failed", "task_id", taskID, "error", err)
		return
	}
	defer conn.Close()

	updates, stop := rt.service.Watch(taskID)
	defer stop()

	if task, ok := rt.service.Task(taskID); ok {
		if err := writeEvent(conn, eventSnapshot, task); err != nil {
			return
		}
		if task.Status.Terminal() && !task.Optimistic {
			closeStream(conn, "task finished")
			return
		}
	}
	rt.service.StartPolling(taskID, nil)

	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-peerGone:
			return
		case task, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(conn, eventUpdate, task); err != nil {
				slog.Warn("events_write_failed", "task_id", taskID, "error", err)
				return
			}
			if task.Status.Terminal() && !task.Optimistic {
				closeStream(conn, "task finished")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, kind eventType, task domain.Task) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
	return conn.WriteJSON(statusEvent{Type: kind, Task: task})
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(eventWriteWait))
}

// allowLocalOrigin accepts handshakes without an Origin header and those
// coming from the bridge's own host or from localhost.
func allowLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return u.Host == r.Host
}
