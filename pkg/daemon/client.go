package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b/tmux-tabgroups/pkg/dispatch"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
)

// ErrClosed is returned by calls on a closed or disconnected client.
var ErrClosed = errors.New("daemon connection closed")

// Client is a connection to a running tabgroupd. It is safe for concurrent use.
type Client struct {
	conn    net.Conn
	sendMu  sync.Mutex
	mu      sync.Mutex
	pending map[string]chan Response
	events  chan tabgroup.Event
	closed  bool
	done    chan struct{}
}

// Dial connects to the daemon socket, retrying briefly while it starts up.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	var conn net.Conn
	var err error
	for i := 0; i < 10; i++ {
		conn, err = d.DialContext(ctx, "unix", socketPath)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[string]chan Response),
		events:  make(chan tabgroup.Event, 64),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.shutdown()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		if resp.Event != nil {
			select {
			case c.events <- *resp.Event:
			default:
				// Slow consumer; the next event still carries current state.
			}
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	close(c.events)
	close(c.done)
}

// Close disconnects from the daemon.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) roundTrip(ctx context.Context, typ string, payload any) (Response, error) {
	req := Request{ID: uuid.NewString(), Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		req.Payload = data
	}
	line, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, ErrClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	c.sendMu.Lock()
	_, err = c.conn.Write(append(line, '\n'))
	c.sendMu.Unlock()
	if err != nil {
		c.forget(req.ID)
		return Response{}, fmt.Errorf("send %s: %w", typ, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(req.ID)
		return Response{}, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Call runs op on the daemon and decodes its result into result, which may
// be nil. A refused operation is returned as a *dispatch.Rejection.
func (c *Client) Call(ctx context.Context, op dispatch.Op, payload, result any) error {
	resp, err := c.roundTrip(ctx, string(op), payload)
	if err != nil {
		return err
	}
	if !resp.OK {
		if resp.Error != nil {
			return resp.Error
		}
		return &dispatch.Rejection{Op: op, Kind: dispatch.KindInternal, Message: "request failed"}
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", op, err)
		}
	}
	return nil
}

// Ping checks that the daemon is answering.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, TypePing, nil)
	if err != nil {
		return err
	}
	if !resp.OK {
		return errors.New("ping refused")
	}
	return nil
}

// Subscribe asks the daemon to push tab group events. The returned channel
// is closed when the connection ends.
func (c *Client) Subscribe(ctx context.Context) (<-chan tabgroup.Event, error) {
	resp, err := c.roundTrip(ctx, TypeSubscribe, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New("subscribe refused")
	}
	return c.events, nil
}
