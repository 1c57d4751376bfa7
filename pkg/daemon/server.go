package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
)

// clientConn tracks one connected socket client.
type clientConn struct {
	id         string
	conn       net.Conn
	writeMu    sync.Mutex
	subscribed atomic.Bool
	events     *eventQueue
}

func (c *clientConn) send(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err = c.conn.Write(append(data, '\n'))
	return err
}

// Server answers requests on a unix socket and pushes tab group events to
// subscribed clients. Requests from one connection are handled in order.
type Server struct {
	socketPath string
	pidPath    string
	handler    Handler
	listener   net.Listener
	clients    map[string]*clientConn
	clientsMu  sync.RWMutex
	clientSeq  atomic.Uint64
	done       chan struct{}
	stopOnce   sync.Once
	baseCtx    context.Context
}

// NewServer creates a server for socketPath. pidPath may be empty to skip
// the single-instance check.
func NewServer(socketPath, pidPath string, h Handler) *Server {
	return &Server{
		socketPath: socketPath,
		pidPath:    pidPath,
		handler:    h,
		clients:    make(map[string]*clientConn),
		done:       make(chan struct{}),
		baseCtx:    context.Background(),
	}
}

// Start begins listening for client connections. ctx carries the logger
// used for every request; cancelling it does not stop the server, Stop does.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = logging.WithComponent(ctx, "daemon")

	if err := s.checkAndClaimPid(); err != nil {
		return err
	}

	// Safe now that we own the pidfile.
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.releasePid()
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener
	logging.FromContext(s.baseCtx).Info().Str("socket", s.socketPath).Msg("listening")

	go s.acceptLoop()
	return nil
}

// checkAndClaimPid checks for existing daemon and claims pidfile
func (s *Server) checkAndClaimPid() error {
	if s.pidPath == "" {
		return nil
	}
	if data, err := os.ReadFile(s.pidPath); err == nil {
		pidStr := strings.TrimSpace(string(data))
		if pid, err := strconv.Atoi(pidStr); err == nil && pid > 0 {
			if process, err := os.FindProcess(pid); err == nil {
				// On Unix, FindProcess always succeeds, so we need to send signal 0
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("daemon already running with pid %d", pid)
				}
			}
		}
		// Stale pidfile
		os.Remove(s.pidPath)
	}

	pid := os.Getpid()
	if err := os.WriteFile(s.pidPath, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

func (s *Server) releasePid() {
	if s.pidPath != "" {
		os.Remove(s.pidPath)
	}
}

// Stop shuts down the server and disconnects every client.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		s.clientsMu.Lock()
		for id, client := range s.clients {
			client.conn.Close()
			delete(s.clients, id)
		}
		s.clientsMu.Unlock()
		os.Remove(s.socketPath)
		s.releasePid()
	})
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			logging.FromContext(s.baseCtx).Warn().Err(err).Msg("accept")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		go s.handleClient(conn)
	}
}

func (s *Server) handleClient(conn net.Conn) {
	client := &clientConn{
		id:     strconv.FormatUint(s.clientSeq.Add(1), 10),
		conn:   conn,
		events: newEventQueue(),
	}
	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.id)
		s.clientsMu.Unlock()
		client.events.stop()
		conn.Close()
	}()

	log := logging.FromContext(s.baseCtx).With().Str("client", client.id).Logger()
	ctx := log.WithContext(s.baseCtx)

	go func() {
		if err := client.events.run(client.send); err != nil {
			log.Debug().Err(err).Msg("write event")
			conn.Close()
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			log.Debug().Err(err).Msg("undecodable request")
			if err := client.send(undecodableResponse(err)); err != nil {
				log.Debug().Err(err).Msg("write response")
				return
			}
			continue
		}

		var resp Response
		switch req.Type {
		case TypeSubscribe:
			client.subscribed.Store(true)
			resp = Response{ID: req.ID, OK: true}
		case TypeUnsubscribe:
			client.subscribed.Store(false)
			resp = Response{ID: req.ID, OK: true}
		case TypePing:
			resp = Response{ID: req.ID, OK: true, Result: json.RawMessage(`"pong"`)}
		default:
			resp = Serve(ctx, s.handler, req)
		}

		if err := client.send(resp); err != nil {
			log.Debug().Err(err).Msg("write response")
			return
		}
	}
}

// Broadcast queues ev for every subscribed client. It never waits on a
// client; a client too far behind loses the event.
func (s *Server) Broadcast(ev tabgroup.Event) {
	s.clientsMu.RLock()
	targets := make([]*clientConn, 0, len(s.clients))
	for _, c := range s.clients {
		if c.subscribed.Load() {
			targets = append(targets, c)
		}
	}
	s.clientsMu.RUnlock()

	resp := eventResponse(ev)
	for _, c := range targets {
		if !c.events.push(resp) {
			logging.FromContext(s.baseCtx).Debug().Str("client", c.id).Str("event", string(ev.Type)).Msg("drop event, client queue full")
		}
	}
}
