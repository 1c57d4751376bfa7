package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/b/tmux-tabgroups/pkg/appconfig"
	"github.com/b/tmux-tabgroups/pkg/dispatch"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
	"github.com/b/tmux-tabgroups/pkg/window"
	"github.com/b/tmux-tabgroups/pkg/window/memhost"
)

var stripCfg = appconfig.TabWindowOptions{URL: "https://tabs.example/strip.html", Height: 60}

type fixture struct {
	host *memhost.Host
	d    *dispatch.Dispatcher
	srv  *Server
	ws   *WebSocketServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{host: memhost.New()}

	configs := appconfig.NewRegistry()
	require.NoError(t, configs.AddApplicationUIConfig("app1", stripCfg))

	reg := tabgroup.NewRegistry(tabgroup.Options{
		Host:    f.host,
		Configs: configs,
		Notify: func(ev tabgroup.Event) {
			f.srv.Broadcast(ev)
			f.ws.Broadcast(ev)
		},
	})
	f.d = dispatch.New(dispatch.Options{Registry: reg})

	dir := t.TempDir()
	f.srv = NewServer(filepath.Join(dir, "d.sock"), filepath.Join(dir, "d.pid"), f.d)
	f.ws = NewWebSocketServer(WebSocketConfig{Token: "secret"}, f.d)
	require.NoError(t, f.srv.Start(context.Background()))
	t.Cleanup(f.srv.Stop)
	return f
}

func (f *fixture) open(names ...string) []window.Identifier {
	ids := make([]window.Identifier, len(names))
	for i, n := range names {
		ids[i] = window.Identifier{ApplicationID: "app1", Name: n}
		f.host.Open(ids[i], window.Bounds{Left: 100, Top: 100, Width: 800, Height: 600})
	}
	return ids
}

func (f *fixture) dial(t *testing.T) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, f.srv.SocketPath())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientCallRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	ids := f.open("a", "b")

	require.NoError(t, c.Ping(callCtx(t)))

	var info dispatch.GroupInfo
	require.NoError(t, c.Call(callCtx(t), dispatch.OpCreateTabGroup, dispatch.CreateTabGroupRequest{Windows: ids}, &info))
	require.Equal(t, ids, info.Tabs)
	require.Equal(t, ids[0], info.Active)

	var tabs []window.Identifier
	require.NoError(t, c.Call(callCtx(t), dispatch.OpGetTabs, dispatch.WindowRequest{Window: ids[0]}, &tabs))
	require.Equal(t, ids, tabs)
}

func TestClientCallReturnsRejection(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	err := c.Call(callCtx(t), dispatch.OpSetActiveTab, dispatch.WindowRequest{
		Window: window.Identifier{ApplicationID: "app1", Name: "nowhere"},
	}, nil)

	var rej *dispatch.Rejection
	require.True(t, errors.As(err, &rej), "got %v", err)
	require.Equal(t, dispatch.KindNotFound, rej.Kind)
	require.Equal(t, dispatch.OpSetActiveTab, rej.Op)
}

func TestClientCallUnknownOp(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	err := c.Call(callCtx(t), dispatch.Op("teleport"), nil, nil)
	require.Equal(t, dispatch.KindInvalidRequest, dispatch.KindOf(err))
}

func TestSubscribeReceivesEvents(t *testing.T) {
	f := newFixture(t)
	watcher := f.dial(t)
	events, err := watcher.Subscribe(callCtx(t))
	require.NoError(t, err)

	// A second client without a subscription gets responses only.
	actor := f.dial(t)
	ids := f.open("a", "b")
	require.NoError(t, actor.Call(callCtx(t), dispatch.OpCreateTabGroup, dispatch.CreateTabGroupRequest{Windows: ids}, nil))

	select {
	case ev := <-events:
		require.Equal(t, tabgroup.EventGroupCreated, ev.Type)
		require.Equal(t, ids, ev.Tabs)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

// rawConn talks to the socket without a Client, to control exactly what
// gets written and read.
func rawConn(t *testing.T, f *fixture) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("unix", f.srv.SocketPath())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readResponse(t *testing.T, conn net.Conn, r *bufio.Reader) Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp), "%s", line)
	return resp
}

func TestUndecodableRequestIsAnswered(t *testing.T) {
	f := newFixture(t)
	conn, r := rawConn(t, f)

	_, err := conn.Write([]byte("{not json\n"))
	require.NoError(t, err)
	resp := readResponse(t, conn, r)
	require.False(t, resp.OK)
	require.Empty(t, resp.ID)
	require.NotNil(t, resp.Error)
	require.Equal(t, dispatch.KindInvalidRequest, resp.Error.Kind)

	// The connection stays usable.
	_, err = conn.Write([]byte(`{"id":"7","type":"ping"}` + "\n"))
	require.NoError(t, err)
	resp = readResponse(t, conn, r)
	require.Equal(t, "7", resp.ID)
	require.True(t, resp.OK)
}

func TestStalledSubscriberDoesNotBlockBroadcast(t *testing.T) {
	f := newFixture(t)
	conn, r := rawConn(t, f)
	_, err := conn.Write([]byte(`{"id":"1","type":"subscribe"}` + "\n"))
	require.NoError(t, err)
	require.True(t, readResponse(t, conn, r).OK)

	// Never read again. Large events fill the socket buffer quickly.
	tabs := make([]window.Identifier, 64)
	for i := range tabs {
		tabs[i] = window.Identifier{ApplicationID: "app1", Name: "tab-" + strconv.Itoa(i)}
	}
	ev := tabgroup.Event{Type: tabgroup.EventGroupCreated, GroupID: "TabSet-1", Tabs: tabs}

	start := time.Now()
	for range 2000 {
		f.srv.Broadcast(ev)
	}
	require.Less(t, time.Since(start), 500*time.Millisecond, "Broadcast waited on a client that is not reading")

	// Requests from other clients are still served.
	require.NoError(t, f.dial(t).Ping(callCtx(t)))
}

func TestServerRefusesSecondInstance(t *testing.T) {
	dir := t.TempDir()
	pid := filepath.Join(dir, "d.pid")
	require.NoError(t, os.WriteFile(pid, []byte(strconv.Itoa(os.Getpid())), 0644))

	srv := NewServer(filepath.Join(dir, "d.sock"), pid, nil)
	err := srv.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already running")
}

func TestServerReplacesStalePidfile(t *testing.T) {
	dir := t.TempDir()
	pid := filepath.Join(dir, "d.pid")
	require.NoError(t, os.WriteFile(pid, []byte("not-a-pid"), 0644))

	srv := NewServer(filepath.Join(dir, "d.sock"), pid, nil)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()

	data, err := os.ReadFile(pid)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	srv.Stop()
	_, err = os.Stat(pid)
	require.True(t, os.IsNotExist(err))
}

func TestClientSeesDisconnect(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	events, err := c.Subscribe(callCtx(t))
	require.NoError(t, err)

	f.srv.Stop()

	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed")
	}
	require.ErrorIs(t, c.Ping(callCtx(t)), ErrClosed)
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestWebSocketRequiresToken(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.ws.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=wrong"), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketServesRequestsAndEvents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.ws.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=secret"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.ws.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Request{ID: "1", Type: TypePing}))
	var resp Response
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "1", resp.ID)
	require.True(t, resp.OK)

	ids := f.open("a", "b")
	payload := `{"windows":[{"uuid":"app1","name":"a"},{"uuid":"app1","name":"b"}]}`
	require.NoError(t, conn.WriteJSON(Request{ID: "2", Type: string(dispatch.OpCreateTabGroup), Payload: []byte(payload)}))

	// Events are written by the client's queue, so either may arrive first.
	var sawEvent, sawResponse bool
	for !(sawEvent && sawResponse) {
		var msg Response
		require.NoError(t, conn.ReadJSON(&msg))
		switch {
		case msg.Event != nil:
			require.Equal(t, tabgroup.EventGroupCreated, msg.Event.Type)
			require.Equal(t, ids, msg.Event.Tabs)
			sawEvent = true
		case msg.ID == "2":
			require.True(t, msg.OK, "%+v", msg.Error)
			sawResponse = true
		}
	}
}

func TestConnectPage(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.ws.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/connect")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/connect?token=secret")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "127.0.0.1:8099", true},
		{"same host", "http://127.0.0.1:3000", "127.0.0.1:8099", true},
		{"localhost", "http://localhost:5173", "127.0.0.1:8099", true},
		{"foreign", "https://evil.example", "127.0.0.1:8099", false},
		{"garbage", "://", "127.0.0.1:8099", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, checkOrigin(r))
		})
	}
}

func TestIsLoopbackRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "127.0.0.1:5555"
	require.True(t, isLoopbackRequest(r))
	r.RemoteAddr = "[::1]:5555"
	require.True(t, isLoopbackRequest(r))
	r.RemoteAddr = "192.168.1.20:5555"
	require.False(t, isLoopbackRequest(r))
}

func TestTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ws-token")

	first, err := LoadOrGenerateToken(path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := LoadOrGenerateToken(path)
	require.NoError(t, err)
	require.Equal(t, first, again)

	fresh, err := RegenerateToken(path)
	require.NoError(t, err)
	require.NotEqual(t, first, fresh)

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0600))
	replaced, err := LoadOrGenerateToken(path)
	require.NoError(t, err)
	require.NotEmpty(t, replaced)
}
