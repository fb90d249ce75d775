package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganszeto/sharedstate/internal/protocol"
	"github.com/loganszeto/sharedstate/internal/stats"
	"github.com/loganszeto/sharedstate/internal/store"
	"github.com/loganszeto/sharedstate/internal/util"
)

var testStart = time.Unix(1_700_000_000, 0)

func startServer(t *testing.T, h Handler, opts ...Option) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	srv := New(ln.Addr().String(), h, opts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	<-srv.Ready()
	return srv
}

func startKV(t *testing.T, token string) (*Server, *util.ManualClock) {
	t.Helper()
	clock := util.NewManualClock(testStart)
	st := store.NewKV(store.KVOptions{Clock: clock, GCCycle: time.Hour})
	h := NewKVHandler(st, HandlerOptions{Clock: clock, Token: token})
	return startServer(t, h), clock
}

func startQueue(t *testing.T, st *stats.Stats) *Server {
	t.Helper()
	h := NewQueueHandler(store.NewQueues(), HandlerOptions{Stats: st})
	return startServer(t, h, WithStats(st))
}

type testConn struct {
	t *testing.T
	c net.Conn
	r *bufio.Reader
}

func dial(t *testing.T, srv *Server) *testConn {
	t.Helper()
	c, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &testConn{t: t, c: c, r: bufio.NewReader(c)}
}

func (tc *testConn) roundTrip(line string) protocol.Response {
	tc.t.Helper()
	_, err := tc.c.Write([]byte(line + "\n"))
	require.NoError(tc.t, err)
	require.NoError(tc.t, tc.c.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := protocol.ReadResponse(tc.r, 0)
	require.NoError(tc.t, err)
	return resp
}

func requireOK(t *testing.T, resp protocol.Response, data string) {
	t.Helper()
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Error)
	assert.Equal(t, data, string(resp.Data))
}

func requireFail(t *testing.T, resp protocol.Response, msg string) {
	t.Helper()
	require.Equal(t, protocol.StatusFailed, resp.Status)
	assert.Contains(t, resp.Error, msg)
}

func TestKVSessionWithExpiry(t *testing.T) {
	srv, clock := startKV(t, "")
	c := dial(t, srv)

	requireOK(t, c.roundTrip(`[1,"user:1",2,{"name":"a"},"cache"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[2,"user:1",null,null,"cache"]`), `{"name":"a"}`)
	requireOK(t, c.roundTrip(`[5,"user:1",null,null,"cache"]`), `"OK"`)

	clock.Advance(3 * time.Second)
	requireOK(t, c.roundTrip(`[2,"user:1",null,null,"cache"]`), `null`)
	requireOK(t, c.roundTrip(`[5,"user:1",null,null,"cache"]`), `"NOK"`)
	requireOK(t, c.roundTrip(`[3,"user:1",null,null,"cache"]`), `"NOK"`)
}

func TestKVHugeTTLOverWire(t *testing.T) {
	srv, clock := startKV(t, "")
	c := dial(t, srv)

	requireOK(t, c.roundTrip(`[1,"k",9223372036854775807,"v","d"]`), `"OK"`)
	clock.Advance(time.Hour)
	requireOK(t, c.roundTrip(`[2,"k",0,null,"d"]`), `"v"`)
}

func TestKVDeleteAndDeleteAll(t *testing.T) {
	srv, _ := startKV(t, "")
	c := dial(t, srv)

	requireOK(t, c.roundTrip(`[1,"a",0,1,"d"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[1,"b",0,2,"d"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[1,"a",0,3,"other"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[3,"a",0,null,"d"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[4,"",0,null,"d"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[4,"",0,null,"d"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[2,"b",0,null,"d"]`), `null`)
	requireOK(t, c.roundTrip(`[2,"a",0,null,"other"]`), `3`)
}

func TestKVPing(t *testing.T) {
	srv, _ := startKV(t, "")
	c := dial(t, srv)
	requireOK(t, c.roundTrip(`[99]`), fmt.Sprint(testStart.Unix()))
}

func TestKVValidation(t *testing.T) {
	srv, _ := startKV(t, "")
	c := dial(t, srv)

	requireFail(t, c.roundTrip(`not json`), "Invalid request")
	requireFail(t, c.roundTrip(`{"cmd":1}`), "Invalid request")
	requireFail(t, c.roundTrip(`[1,"",0,"v","d"]`), ErrMsgEmptyKey)
	requireFail(t, c.roundTrip(`[2,"   ",0,null,"d"]`), ErrMsgEmptyKey)
	requireFail(t, c.roundTrip(`[42,"k",0,null,"d"]`), ErrMsgInvalidCommand)
	requireFail(t, c.roundTrip(`[42,"",0,null,"d"]`), ErrMsgInvalidCommand)
	requireOK(t, c.roundTrip(`[99]`), fmt.Sprint(testStart.Unix()))
}

func TestKVToken(t *testing.T) {
	srv, _ := startKV(t, "s3cret")
	c := dial(t, srv)

	requireFail(t, c.roundTrip(`[1,"k",0,"v","d"]`), ErrMsgInvalidToken)
	requireFail(t, c.roundTrip(`[1,"k",0,"v","d","wrong"]`), ErrMsgInvalidToken)
	requireOK(t, c.roundTrip(`[1,"k",0,"v","d","s3cret"]`), `"OK"`)
	requireFail(t, c.roundTrip(`[1,"",0,"v","d","wrong"]`), ErrMsgEmptyKey)
}

func TestOversizedLineKeepsConnection(t *testing.T) {
	clock := util.NewManualClock(testStart)
	h := NewKVHandler(store.NewKV(store.KVOptions{Clock: clock}), HandlerOptions{Clock: clock})
	srv := startServer(t, h, WithMaxLine(64))
	c := dial(t, srv)

	big := `[1,"k",0,"` + strings.Repeat("x", 500) + `","d"]`
	requireFail(t, c.roundTrip(big), "Invalid request")
	requireOK(t, c.roundTrip(`[1,"k",0,"small","d"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[2,"k",0,null,"d"]`), `"small"`)
}

func TestQueueSession(t *testing.T) {
	srv := startQueue(t, stats.New("queue", nil))
	c := dial(t, srv)

	requireOK(t, c.roundTrip(`[1,"jobs",{"id":1}]`), `"OK"`)
	requireOK(t, c.roundTrip(`[1,"jobs",{"id":2}]`), `"OK"`)
	requireOK(t, c.roundTrip(`[3,"jobs"]`), `2`)
	requireOK(t, c.roundTrip(`[2,"jobs"]`), `{"id":1}`)
	requireOK(t, c.roundTrip(`[2,"jobs"]`), `{"id":2}`)
	requireOK(t, c.roundTrip(`[2,"jobs"]`), `null`)
	requireOK(t, c.roundTrip(`[3,"jobs"]`), `0`)
	requireOK(t, c.roundTrip(`[2,"never"]`), `null`)
	requireOK(t, c.roundTrip(`[4,"jobs"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[4,"jobs"]`), `"NOK"`)

	requireFail(t, c.roundTrip(`[1,"",1]`), ErrMsgEmptyQueue)
	requireFail(t, c.roundTrip(`[7,"jobs"]`), ErrMsgInvalidCommand)
	requireFail(t, c.roundTrip(`[`), "Invalid request")
}

func TestQueueStats(t *testing.T) {
	srv := startQueue(t, stats.New("queue", nil))
	c := dial(t, srv)

	requireOK(t, c.roundTrip(`[1,"a","x"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[1,"a","y"]`), `"OK"`)
	requireOK(t, c.roundTrip(`[1,"b","z"]`), `"OK"`)

	resp := c.roundTrip(`[98]`)
	require.True(t, resp.Success(), resp.Error)
	var report protocol.QueueStatsReport
	require.NoError(t, resp.Data.Decode(&report))
	assert.Equal(t, 2, report.Queues)
	assert.Equal(t, 3, report.Items)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, report.Sizes)
	assert.Equal(t, int64(3), report.Counters["requests"])
	assert.Equal(t, int64(1), report.Counters["connections"])
}

func TestConcurrentClientsShareState(t *testing.T) {
	srv := startQueue(t, stats.New("queue", nil))
	const clients, per = 8, 50

	done := make(chan struct{}, clients)
	for i := 0; i < clients; i++ {
		c := dial(t, srv)
		go func(id int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < per; j++ {
				line := fmt.Sprintf(`[1,"shared","%d-%d"]`+"\n", id, j)
				if _, err := c.c.Write([]byte(line)); err != nil {
					return
				}
				if _, err := protocol.ReadResponse(c.r, 0); err != nil {
					return
				}
			}
		}(i)
	}
	for i := 0; i < clients; i++ {
		<-done
	}
	c := dial(t, srv)
	requireOK(t, c.roundTrip(`[3,"shared"]`), fmt.Sprint(clients*per))
}

func TestWebSocketGateway(t *testing.T) {
	srv, _ := startKV(t, "")
	hs := httptest.NewServer(NewHTTPHandler(srv, HTTPOptions{WebSocket: true}))
	t.Cleanup(hs.Close)

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	send := func(msg string) protocol.Response {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(msg)))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		require.True(t, strings.HasSuffix(string(data), "\n"))
		resp, err := protocol.DecodeResponse([]byte(strings.TrimSpace(string(data))))
		require.NoError(t, err)
		return resp
	}
	requireOK(t, send(`[1,"k",0,"via-ws","d"]`), `"OK"`)

	c := dial(t, srv)
	requireOK(t, c.roundTrip(`[2,"k",0,null,"d"]`), `"via-ws"`)
	requireFail(t, send(`[9,"k"]`), ErrMsgInvalidCommand)
}

func TestShutdownClosesWebSocketConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := New(ln.Addr().String(), NewQueueHandler(store.NewQueues(), HandlerOptions{}))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()
	<-srv.Ready()

	hs := httptest.NewServer(NewHTTPHandler(srv, HTTPOptions{WebSocket: true}))
	t.Cleanup(hs.Close)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`[1,"q","x"]`)))
	_, _, err = ws.ReadMessage()
	require.NoError(t, err)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = ws.ReadMessage()
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) {
		assert.False(t, ne.Timeout(), "gateway connection left open after shutdown")
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := startKV(t, "")
	hs := httptest.NewServer(NewHTTPHandler(srv, HTTPOptions{}))
	t.Cleanup(hs.Close)

	resp, err := hs.Client().Get(hs.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	missing, err := hs.Client().Get(hs.URL + "/ws")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, 404, missing.StatusCode, "gateway not mounted")
}

func TestShutdownClosesConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	srv := New(ln.Addr().String(), NewQueueHandler(store.NewQueues(), HandlerOptions{}))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()
	<-srv.Ready()

	c := dial(t, srv)
	requireOK(t, c.roundTrip(`[1,"q","x"]`), `"OK"`)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	require.NoError(t, c.c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = c.r.ReadByte()
	assert.Error(t, err)
	assert.Equal(t, "server shutting down", srv.Do(context.Background(), []byte(`[3,"q"]`)).Error)
}
