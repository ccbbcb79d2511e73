package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tansive/chatbridge/internal/bridge/eventbus"
	"github.com/tansive/chatbridge/internal/bridge/provider"
)

type fakeClient struct {
	chats    json.RawMessage
	messages []json.RawMessage
	chatsErr error
	msgErr   error
	closeErr error
	closed   atomic.Int32
	lastChat atomic.Value
}

func (c *fakeClient) GetChats(ctx context.Context) (json.RawMessage, error) {
	if c.chatsErr != nil {
		return nil, c.chatsErr
	}
	return c.chats, nil
}

func (c *fakeClient) GetMessages(ctx context.Context, chatID string) ([]json.RawMessage, error) {
	c.lastChat.Store(chatID)
	if c.msgErr != nil {
		return nil, c.msgErr
	}
	return c.messages, nil
}

func (c *fakeClient) Close(ctx context.Context) error {
	c.closed.Add(1)
	return c.closeErr
}

// fakeDriver stands in for the automation driver. Configure it before use.
type fakeDriver struct {
	createErr   error
	createDelay time.Duration
	qrSync      bool
	qrAsync     bool
	qrDelay     time.Duration
	client      *fakeClient

	mu        sync.Mutex
	callbacks map[string]provider.Callbacks
	clients   map[string]*fakeClient
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		callbacks: make(map[string]provider.Callbacks),
		clients:   make(map[string]*fakeClient),
	}
}

func (d *fakeDriver) CreateSession(ctx context.Context, id string, cb provider.Callbacks) (provider.Client, error) {
	d.mu.Lock()
	d.callbacks[id] = cb
	d.mu.Unlock()

	if d.qrSync {
		cb.OnQR(qrFor(id))
	}
	if d.qrAsync {
		go func() {
			time.Sleep(d.qrDelay)
			cb.OnQR(qrFor(id))
		}()
	}
	if d.createDelay > 0 {
		time.Sleep(d.createDelay)
	}
	if d.createErr != nil {
		return nil, d.createErr
	}
	client := d.client
	if client == nil {
		client = &fakeClient{}
	}
	d.mu.Lock()
	d.clients[id] = client
	d.mu.Unlock()
	return client, nil
}

func (d *fakeDriver) callbacksFor(id string) (provider.Callbacks, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.callbacks[id]
	return cb, ok
}

func (d *fakeDriver) clientFor(id string) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[id]
}

func qrFor(id string) string {
	return "data:image/png;base64,qr-" + id
}

type fakeAnalyzer struct {
	transcript atomic.Value
	rsp        json.RawMessage
	err        error
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, transcript string) (json.RawMessage, error) {
	a.transcript.Store(transcript)
	if a.err != nil {
		return nil, a.err
	}
	return a.rsp, nil
}

var errDriver = errors.New("browser failed to launch")

func newTestCoordinator(driver provider.Driver, analyzer Analyzer, opts Options) *Coordinator {
	if opts.QRTimeout == 0 {
		opts.QRTimeout = 2 * time.Second
	}
	return NewCoordinator(NewStore(nil), eventbus.New(), driver, analyzer, nil, opts)
}
