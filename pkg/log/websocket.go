// WebSocket telemetry appender.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketAppender serves a log stream to any number of browser clients.
// Flushed batches are broadcast as one text message; slow or broken
// clients are dropped rather than allowed to stall the flush.
type WebSocketAppender struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

// NewWebSocketAppender returns an appender with no clients. Register
// Handler() on an HTTP mux to accept connections.
func NewWebSocketAppender() *WebSocketAppender {
	return &WebSocketAppender{
		upgrader: websocket.Upgrader{
			// The log stream is read-only diagnostics on a trusted LAN.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the HTTP handler that upgrades connections onto the
// log stream.
func (a *WebSocketAppender) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			conn.Close()
			return
		}
		a.clients[conn] = struct{}{}
		a.mu.Unlock()

		// Drain (and discard) client messages so pings are answered and
		// disconnects are noticed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					a.drop(conn)
					return
				}
			}
		}()
	}
}

// ClientCount returns the number of attached stream clients.
func (a *WebSocketAppender) ClientCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.clients)
}

// Append implements Appender.
func (a *WebSocketAppender) Append(lines []string) {
	payload := []byte(strings.Join(lines, "\n"))

	a.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(a.clients))
	for c := range a.clients {
		conns = append(conns, c)
	}
	a.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			a.drop(c)
		}
	}
}

// Close implements Appender.
func (a *WebSocketAppender) Close() error {
	a.mu.Lock()
	a.closed = true
	conns := make([]*websocket.Conn, 0, len(a.clients))
	for c := range a.clients {
		conns = append(conns, c)
	}
	a.clients = make(map[*websocket.Conn]struct{})
	a.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return nil
}

func (a *WebSocketAppender) drop(conn *websocket.Conn) {
	a.mu.Lock()
	_, ok := a.clients[conn]
	delete(a.clients, conn)
	a.mu.Unlock()
	if ok {
		conn.Close()
	}
}
