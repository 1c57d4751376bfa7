package daemon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
)

// WebSocketConfig configures the bridge tab-strip pages connect to.
type WebSocketConfig struct {
	Listen string // host:port, loopback only
	Token  string
}

// WebSocketServer speaks the socket protocol over websocket text frames.
// Tab-strip pages receive every event without subscribing.
type WebSocketServer struct {
	cfg        WebSocketConfig
	handler    Handler
	upgrader   websocket.Upgrader
	httpServer *http.Server
	clients    map[*wsClient]struct{}
	clientSeq  atomic.Uint64
	mu         sync.RWMutex
	baseCtx    context.Context
}

type wsClient struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  *eventQueue
}

func (c *wsClient) send(resp Response) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	return c.conn.WriteJSON(resp)
}

func NewWebSocketServer(cfg WebSocketConfig, h Handler) *WebSocketServer {
	s := &WebSocketServer{
		cfg:     cfg,
		handler: h,
		clients: make(map[*wsClient]struct{}),
		baseCtx: context.Background(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
	return s
}

// Handler returns the bridge's HTTP routes: /ws and the /connect pairing page.
func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/connect", s.handleConnect)
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *WebSocketServer) ListenAndServe(ctx context.Context) error {
	s.baseCtx = logging.WithComponent(ctx, "websocket")
	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.FromContext(s.baseCtx).Info().Str("listen", s.cfg.Listen).Msg("websocket bridge listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("websocket bridge: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		s.closeClients()
		return nil
	}
}

func (s *WebSocketServer) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.conn.Close()
		delete(s.clients, c)
	}
}

// ClientCount returns the number of connected pages.
func (s *WebSocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *WebSocketServer) validateToken(r *http.Request) bool {
	token := r.URL.Query().Get("token")
	return s.cfg.Token != "" && token == s.cfg.Token
}

func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if !s.validateToken(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(s.baseCtx).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		id:     "ws-" + strconv.FormatUint(s.clientSeq.Add(1), 10),
		conn:   conn,
		events: newEventQueue(),
	}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	go s.readLoop(client)
}

func (s *WebSocketServer) readLoop(client *wsClient) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
		client.events.stop()
		_ = client.conn.Close()
	}()

	log := logging.FromContext(s.baseCtx).With().Str("client", client.id).Logger()
	ctx := log.WithContext(s.baseCtx)

	go func() {
		if err := client.events.run(client.send); err != nil {
			log.Debug().Err(err).Msg("write event")
			_ = client.conn.Close()
		}
	}()

	for {
		msgType, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Debug().Err(err).Msg("undecodable request")
			if err := client.send(undecodableResponse(err)); err != nil {
				log.Debug().Err(err).Msg("write response")
				return
			}
			continue
		}

		var resp Response
		switch req.Type {
		case TypePing:
			resp = Response{ID: req.ID, OK: true, Result: json.RawMessage(`"pong"`)}
		case TypeSubscribe, TypeUnsubscribe:
			resp = Response{ID: req.ID, OK: true}
		default:
			resp = Serve(ctx, s.handler, req)
		}
		if err := client.send(resp); err != nil {
			log.Debug().Err(err).Msg("write response")
			return
		}
	}
}

// Broadcast queues ev for every connected page without waiting on any.
func (s *WebSocketServer) Broadcast(ev tabgroup.Event) {
	s.mu.RLock()
	targets := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	resp := eventResponse(ev)
	for _, c := range targets {
		if !c.events.push(resp) {
			logging.FromContext(s.baseCtx).Debug().Str("client", c.id).Str("event", string(ev.Type)).Msg("drop event, client queue full")
		}
	}
}

// handleConnect serves a page with the websocket URL as a QR code, for
// pointing a tab-strip page on another device at the bridge.
func (s *WebSocketServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if !s.validateToken(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wsURL := fmt.Sprintf("ws://%s/ws?token=%s", r.Host, url.QueryEscape(s.cfg.Token))
	png, err := qrcode.Encode(wsURL, qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "failed to generate qr code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, connectPageHTML, base64.StdEncoding.EncodeToString(png), wsURL)
}

func isLoopbackRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := originURL.Hostname()
	if originHost == "" {
		return false
	}
	requestHost, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		requestHost = r.Host
	}
	return originHost == requestHost || originHost == "localhost" || originHost == "127.0.0.1"
}

const connectPageHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>Tab groups: connect a tab strip</title>
    <style>
      body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 32px; }
      .qr { width: 256px; height: 256px; border: 1px solid #ddd; padding: 8px; }
      code { display: block; margin-top: 12px; padding: 12px; background: #f6f6f6; border-radius: 8px; }
    </style>
  </head>
  <body>
    <h1>Connect a tab strip</h1>
    <img class="qr" src="data:image/png;base64,%s" alt="QR code" />
    <p>Tab-strip pages connect to:</p>
    <code>%s</code>
  </body>
</html>
`
