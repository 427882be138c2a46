// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/export"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 200 * time.Millisecond
	requestTimeout = 5 * time.Second
	broadcastQueue = 256
)

// Envelope wraps every websocket message so clients can dispatch on Type.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WebSocketTransport implements the Transport interface for WebSocket
// clients and serves the session control routes next to the /ws endpoint:
//
//	GET  /ws              result stream
//	GET  /status          session counters
//	GET  /export          snapshot (?format=parquet&table=signals|rates)
//	POST /capture/start   start a new session
//	POST /capture/stop    stop the current session
//
// Thread Safety:
//   - Uses mutex for client map access
//   - Only the broadcast goroutine writes to client connections
type WebSocketTransport struct {
	addr     string
	ctrl     Controller
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	server *http.Server
}

// NewWebSocketTransport creates the transport and starts its broadcast
// loop. ctrl may be nil, in which case the control routes answer 503.
// Call Start to listen on addr.
func NewWebSocketTransport(addr string, ctrl Controller) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // UI is served from a different origin
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, broadcastQueue),
		done:      make(chan struct{}),
	}

	wst.mux = http.NewServeMux()
	wst.mux.HandleFunc("GET /ws", wst.handleWebSocket)
	wst.mux.HandleFunc("GET /status", wst.handleStatus)
	wst.mux.HandleFunc("GET /export", wst.handleExport)
	wst.mux.HandleFunc("POST /capture/start", wst.handleCapture(true))
	wst.mux.HandleFunc("POST /capture/stop", wst.handleCapture(false))

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler exposes the routes, for embedding or testing.
func (wst *WebSocketTransport) Handler() http.Handler {
	return wst.mux
}

// Start listens on the configured address and serves in the background.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("transport: listening on %s: %w", wst.addr, err)
	}
	wst.server = &http.Server{
		Handler:           wst.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("WebSocketTransport: Listening on %s", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	return nil
}

// ClientCount returns the number of connected websocket clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	log.Infof("WebSocketTransport: Client connected, total: %d", total)

	// Clients only listen; any read error means the peer went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.removeClient(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) removeClient(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		log.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			msg, err := json.Marshal(envelope(data))
			if err != nil {
				log.Errorf("WebSocketTransport: Encoding %T: %v", data, err)
				continue
			}

			wst.clientsMu.Lock()
			clients := make([]*websocket.Conn, 0, len(wst.clients))
			for c := range wst.clients {
				clients = append(clients, c)
			}
			wst.clientsMu.Unlock()

			for _, c := range clients {
				_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					log.Debugf("WebSocketTransport: Error sending to client: %v", err)
					wst.removeClient(c)
				}
			}
		}
	}
}

func envelope(data any) Envelope {
	switch v := data.(type) {
	case Envelope:
		return v
	case vitals.Result, *vitals.Result:
		return Envelope{Type: "result", Data: v}
	case vitals.Status:
		return Envelope{Type: "status", Data: v}
	default:
		return Envelope{Type: "message", Data: v}
	}
}

// Send queues data for broadcast. When the queue is full the message is
// dropped; results are superseded every few seconds anyway.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return errors.New("transport: websocket transport closed")
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		log.Debugf("WebSocketTransport: Broadcast queue full, dropping %T", data)
	}
	return nil
}

func (wst *WebSocketTransport) handleStatus(w http.ResponseWriter, r *http.Request) {
	if wst.ctrl == nil {
		http.Error(w, "no session controller", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, wst.ctrl.Status())
}

func (wst *WebSocketTransport) handleCapture(start bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wst.ctrl == nil {
			http.Error(w, "no session controller", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := contextWithTimeout(r)
		defer cancel()

		var (
			st  vitals.Status
			err error
		)
		if start {
			st, err = wst.ctrl.StartCapture(ctx)
		} else {
			st, err = wst.ctrl.StopCapture(ctx)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = wst.Send(st)
		writeJSON(w, http.StatusOK, st)
	}
}

func (wst *WebSocketTransport) handleExport(w http.ResponseWriter, r *http.Request) {
	if wst.ctrl == nil {
		http.Error(w, "no session controller", http.StatusServiceUnavailable)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil || format == export.Both {
		http.Error(w, "format must be json or parquet", http.StatusBadRequest)
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	snap, err := wst.ctrl.Export(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if format == export.JSON {
		w.Header().Set("Content-Type", "application/json")
		if err := export.WriteJSON(w, snap); err != nil {
			log.Errorf("WebSocketTransport: Writing export: %v", err)
		}
		return
	}

	var write func(w http.ResponseWriter) error
	switch table := r.URL.Query().Get("table"); table {
	case "", "signals":
		write = func(w http.ResponseWriter) error { return export.WriteSignalsParquet(w, snap) }
	case "rates":
		write = func(w http.ResponseWriter) error { return export.WriteRatesParquet(w, snap) }
	default:
		http.Error(w, fmt.Sprintf("unknown table %q", table), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	if err := write(w); err != nil {
		log.Errorf("WebSocketTransport: Writing parquet export: %v", err)
	}
}

// Close shuts down the broadcast loop, all clients and the HTTP server.
// It is idempotent.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		log.Infof("WebSocketTransport: Closing server")
		close(wst.done)
		wst.wg.Wait()

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
