// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"bivo/internal/log"
)

// DefaultMonitorWriteTimeout bounds one event write to one client. A client
// that cannot take an event in time is disconnected.
const DefaultMonitorWriteTimeout = 2 * time.Second

// Monitor broadcasts pipeline events as JSON to websocket clients connected
// on /ws. Send never blocks: when the queue is full the event is dropped.
type Monitor struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	dropped   atomic.Uint64

	writeTimeout time.Duration

	serverMu sync.Mutex
	server   *http.Server

	log log.Logger
}

// NewMonitor creates a monitor and starts its broadcast loop.
func NewMonitor() *Monitor {
	m := &Monitor{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:      make(map[*websocket.Conn]bool),
		broadcast:    make(chan any, 256),
		done:         make(chan struct{}),
		writeTimeout: DefaultMonitorWriteTimeout,
		log:          log.Named("monitor"),
	}
	m.wg.Add(1)
	go m.handleBroadcasts()
	return m
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.handleWebSocket)
	return mux
}

// ListenAndServe serves the monitor on addr until Close. It returns nil
// after a clean shutdown.
func (m *Monitor) ListenAndServe(addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	m.serverMu.Lock()
	select {
	case <-m.done:
		m.serverMu.Unlock()
		return nil
	default:
	}
	m.server = srv
	m.serverMu.Unlock()

	m.log.Infof("serving websocket monitor on %s/ws", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warnf("upgrade error: %v", err)
		return
	}

	m.clientsMu.Lock()
	select {
	case <-m.done:
		m.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	m.clients[conn] = true
	total := len(m.clients)
	m.clientsMu.Unlock()
	m.log.Infof("client connected, total: %d", total)

	// Clients never send; a read only returns when they go away.
	go func() {
		if _, _, err := conn.ReadMessage(); err != nil {
			m.drop(conn)
		}
	}()
}

func (m *Monitor) drop(conn *websocket.Conn) {
	m.clientsMu.Lock()
	_, ok := m.clients[conn]
	delete(m.clients, conn)
	total := len(m.clients)
	m.clientsMu.Unlock()
	conn.Close()
	if ok {
		m.log.Infof("client disconnected, total: %d", total)
	}
}

func (m *Monitor) handleBroadcasts() {
	defer m.wg.Done()
	for {
		select {
		case data := <-m.broadcast:
			for _, client := range m.snapshot() {
				client.SetWriteDeadline(time.Now().Add(m.writeTimeout))
				if err := client.WriteJSON(data); err != nil {
					m.log.Warnf("error sending to client: %v", err)
					m.drop(client)
				}
			}
		case <-m.done:
			return
		}
	}
}

// snapshot copies the client set so writes happen outside clientsMu.
func (m *Monitor) snapshot() []*websocket.Conn {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	clients := make([]*websocket.Conn, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	return clients
}

// Clients returns the number of connected clients.
func (m *Monitor) Clients() int {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	return len(m.clients)
}

// Dropped returns how many events were discarded because the queue was full.
func (m *Monitor) Dropped() uint64 {
	return m.dropped.Load()
}

// Send queues data for broadcast.
func (m *Monitor) Send(data any) error {
	select {
	case <-m.done:
		return errors.New("transport: monitor closed")
	default:
	}
	select {
	case m.broadcast <- data:
	default:
		m.dropped.Add(1)
	}
	return nil
}

// Close disconnects every client and stops the server. Connections are
// closed before the broadcast loop is awaited so a write blocked on a
// stalled client fails instead of holding Close.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.clientsMu.Lock()
		close(m.done)
		clients := m.clients
		m.clients = make(map[*websocket.Conn]bool)
		m.clientsMu.Unlock()

		for client := range clients {
			client.Close()
		}
		m.wg.Wait()

		m.serverMu.Lock()
		if m.server != nil {
			err = m.server.Close()
		}
		m.serverMu.Unlock()
	})
	return err
}

var _ Transport = (*Monitor)(nil)
