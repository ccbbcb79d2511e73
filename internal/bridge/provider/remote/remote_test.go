package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/chatbridge/internal/bridge/provider"
)

// fakeSidecar emulates the automation sidecar.
type fakeSidecar struct {
	version      string
	versionFails atomic.Int32
	failCreate   bool

	mu       sync.Mutex
	conns    map[string]*websocket.Conn
	closed   map[string]bool
	requests []string
}

func newFakeSidecar(t *testing.T) (*fakeSidecar, *httptest.Server) {
	f := &fakeSidecar{
		version: "1.4.2",
		conns:   make(map[string]*websocket.Conn),
		closed:  make(map[string]bool),
	}
	upgrader := websocket.Upgrader{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.requests = append(f.requests, r.URL.EscapedPath())
			f.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		if f.versionFails.Add(-1) >= 0 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"version": f.version})
	})
	r.Get("/sessions/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns[chi.URLParam(r, "id")] = conn
		f.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	r.Post("/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"sessionId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if f.failCreate {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"chromium not found"}`))
			return
		}
		f.waitConn(req.SessionID)
		f.send(req.SessionID, "qr", "data:image/png;base64,AAAA")
		f.send(req.SessionID, "status", "notLogged")
		w.WriteHeader(http.StatusCreated)
	})
	r.Get("/sessions/{id}/chats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"123@c.us","name":"Alice"}]`))
	})
	r.Get("/sessions/{id}/chats/{chatId}/messages", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "chatId") != "123@c.us" {
			http.Error(w, `{"error":"chat not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`[{"timestamp":1700000000,"sender":{"pushname":"Alice"},"body":"Hello"},{"timestamp":1700000001,"body":"x"}]`))
	})
	r.Post("/sessions/{id}/close", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.closed[chi.URLParam(r, "id")] = true
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeSidecar) send(id, kind, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conn, ok := f.conns[id]; ok {
		_ = conn.WriteJSON(map[string]string{"type": kind, "data": data})
	}
}

// waitConn blocks until the event stream of id is registered; the client dials it
// before creating the session but the upgrade handler stores it asynchronously.
func (f *fakeSidecar) waitConn(id string) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		_, ok := f.conns[id]
		f.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeSidecar) dropStream(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conn, ok := f.conns[id]; ok {
		_ = conn.Close()
	}
}

func (f *fakeSidecar) requestPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeSidecar) wasClosed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[id]
}

func newTestDriver(t *testing.T, url string) *Driver {
	d, err := New(Config{URL: url, ProbeDelay: time.Millisecond, RequestTimeout: 2 * time.Second})
	require.NoError(t, err)
	return d
}

type recorder struct {
	qr     chan string
	status chan string
}

func newRecorder() *recorder {
	return &recorder{qr: make(chan string, 8), status: make(chan string, 8)}
}

func (r *recorder) callbacks() provider.Callbacks {
	return provider.Callbacks{
		OnQR:     func(code string) { r.qr <- code },
		OnStatus: func(s string) { r.status <- s },
	}
}

func receive(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for callback")
		return ""
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{URL: "not a url"})
	assert.Error(t, err)
	_, err = New(Config{URL: "http://localhost:3002", VersionConstraint: "not-a-constraint"})
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	f, srv := newFakeSidecar(t)
	f.versionFails.Store(2)
	d := newTestDriver(t, srv.URL)

	v, err := d.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", v.String())
}

func TestProbeIncompatible(t *testing.T) {
	f, srv := newFakeSidecar(t)
	f.version = "2.0.0"
	d := newTestDriver(t, srv.URL)

	_, err := d.Probe(context.Background())
	assert.ErrorIs(t, err, ErrIncompatibleDriver)
}

func TestProbeExhaustsRetries(t *testing.T) {
	f, srv := newFakeSidecar(t)
	f.versionFails.Store(100)
	d, err := New(Config{URL: srv.URL, ProbeAttempts: 3, ProbeDelay: time.Millisecond})
	require.NoError(t, err)

	_, err = d.Probe(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(97), f.versionFails.Load())
}

func TestCheckSingleAttempt(t *testing.T) {
	f, srv := newFakeSidecar(t)
	f.versionFails.Store(1)
	d := newTestDriver(t, srv.URL)

	_, err := d.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(0), f.versionFails.Load(), "one request only")

	v, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", v.String())

	f.version = "2.1.0"
	_, err = d.Check(context.Background())
	assert.ErrorIs(t, err, ErrIncompatibleDriver)
}

func TestCreateSessionDeliversEvents(t *testing.T) {
	f, srv := newFakeSidecar(t)
	d := newTestDriver(t, srv.URL)
	rec := newRecorder()

	client, err := d.CreateSession(context.Background(), "s1", rec.callbacks())
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.Equal(t, "data:image/png;base64,AAAA", receive(t, rec.qr))
	assert.Equal(t, "notLogged", receive(t, rec.status))

	f.send("s1", "status", "isLogged")
	assert.Equal(t, "isLogged", receive(t, rec.status))

	require.NoError(t, client.Close(context.Background()))
	assert.True(t, f.wasClosed("s1"))

	select {
	case s := <-rec.status:
		t.Fatalf("unexpected status after close: %s", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCreateSessionFailure(t *testing.T) {
	f, srv := newFakeSidecar(t)
	f.failCreate = true
	d := newTestDriver(t, srv.URL)

	client, err := d.CreateSession(context.Background(), "s1", newRecorder().callbacks())
	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium not found")
}

func TestStreamLostReportsDisconnect(t *testing.T) {
	f, srv := newFakeSidecar(t)
	d := newTestDriver(t, srv.URL)
	rec := newRecorder()

	_, err := d.CreateSession(context.Background(), "s1", rec.callbacks())
	require.NoError(t, err)
	receive(t, rec.qr)
	assert.Equal(t, "notLogged", receive(t, rec.status))

	f.dropStream("s1")
	assert.Equal(t, statusStreamLost, receive(t, rec.status))
}

func TestChatsAndMessages(t *testing.T) {
	_, srv := newFakeSidecar(t)
	d := newTestDriver(t, srv.URL)

	client, err := d.CreateSession(context.Background(), "s1", provider.Callbacks{})
	require.NoError(t, err)

	chats, err := client.GetChats(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"123@c.us","name":"Alice"}]`, string(chats))

	messages, err := client.GetMessages(context.Background(), "123@c.us")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.JSONEq(t, `{"timestamp":1700000000,"sender":{"pushname":"Alice"},"body":"Hello"}`, string(messages[0]))

	_, err = client.GetMessages(context.Background(), "999@c.us")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestParseArray(t *testing.T) {
	_, err := parseArray([]byte(`{"a":1}`))
	assert.ErrorIs(t, err, ErrInvalidResponse)
	_, err = parseArray([]byte(`nope`))
	assert.ErrorIs(t, err, ErrInvalidResponse)
	r, err := parseArray([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, rawElements(r))
}

func TestMessagesStayInsideSession(t *testing.T) {
	f, srv := newFakeSidecar(t)
	d := newTestDriver(t, srv.URL)

	client, err := d.CreateSession(context.Background(), "A", provider.Callbacks{})
	require.NoError(t, err)

	_, err = client.GetMessages(context.Background(), "../../B/chats/secret")
	require.Error(t, err)

	_, err = client.GetMessages(context.Background(), "..")
	assert.ErrorIs(t, err, ErrInvalidID)

	for _, p := range f.requestPaths() {
		assert.NotContains(t, p, "/sessions/B")
	}
	assert.Contains(t, f.requestPaths(), "/sessions/A/chats/..%2F..%2FB%2Fchats%2Fsecret/messages")
}

func TestSessionPath(t *testing.T) {
	p, err := sessionPath("s1", "chats", "123@c.us", "messages")
	require.NoError(t, err)
	assert.Equal(t, "/sessions/s1/chats/123@c.us/messages", p)

	p, err = sessionPath("s1", "chats", "a/b?c", "messages")
	require.NoError(t, err)
	assert.Equal(t, "/sessions/s1/chats/a%2Fb%3Fc/messages", p)

	for _, bad := range []string{"", ".", ".."} {
		_, err := sessionPath("s1", "chats", bad, "messages")
		assert.ErrorIs(t, err, ErrInvalidID, "segment %q", bad)
		_, err = sessionPath(bad, "chats")
		assert.ErrorIs(t, err, ErrInvalidID, "id %q", bad)
	}
}
