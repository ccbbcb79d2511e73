package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/chatbridge/internal/bridge/eventbus"
	"github.com/tansive/chatbridge/internal/bridge/observability"
)

func TestReap(t *testing.T) {
	metrics := observability.NewMetrics("test")
	store := NewStore(metrics)
	c := NewCoordinator(store, eventbus.New(), newFakeDriver(), nil, metrics, Options{PairingGrace: time.Minute})

	now := time.Now()
	errored := &fakeClient{}
	require.Nil(t, store.Put(Session{ID: "connected", CreatedAt: now.Add(-time.Hour)}))
	store.SetStatus("connected", StatusConnected, "isLogged")
	require.Nil(t, store.Put(Session{ID: "fresh", CreatedAt: now}))
	require.Nil(t, store.Put(Session{ID: "stale", CreatedAt: now.Add(-2 * time.Minute)}))
	require.Nil(t, store.Put(Session{ID: "errored", CreatedAt: now}))
	store.SetClient("errored", errored)
	store.MarkError("errored")
	require.Nil(t, store.Put(Session{ID: "gone", CreatedAt: now}))
	store.SetStatus("gone", StatusDisconnected, "browserClose")

	reaped := c.Reap(context.Background(), now)
	assert.Equal(t, 3, reaped)

	for _, id := range []string{"connected", "fresh"} {
		_, err := store.Get(id)
		assert.Nil(t, err, id)
	}
	for _, id := range []string{"stale", "errored", "gone"} {
		_, err := store.Get(id)
		assert.ErrorIs(t, err, ErrSessionNotFound, id)
	}
	assert.Equal(t, int32(1), errored.closed.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReapedSessions.WithLabelValues(ReapStale)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReapedSessions.WithLabelValues(ReapError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReapedSessions.WithLabelValues(ReapDisconnected)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ActiveSessions))
}

func TestStartJanitor(t *testing.T) {
	store := NewStore(nil)
	c := NewCoordinator(store, eventbus.New(), newFakeDriver(), nil, nil, Options{})
	require.Nil(t, store.Put(Session{ID: "errored"}))
	store.MarkError("errored")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartJanitor(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 5*time.Millisecond)
}
