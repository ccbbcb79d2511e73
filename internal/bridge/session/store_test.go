package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/chatbridge/internal/bridge/observability"
)

func TestStorePutGetRemove(t *testing.T) {
	metrics := observability.NewMetrics("test")
	store := NewStore(metrics)

	require.Nil(t, store.Put(Session{ID: "s1"}))
	sess, err := store.Get("s1")
	require.Nil(t, err)
	assert.Equal(t, StatusInitializing, sess.Status)
	assert.False(t, sess.CreatedAt.IsZero())
	assert.False(t, sess.HasClient())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ActiveSessions))

	err = store.Put(Session{ID: "s1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.ErrorIs(t, store.Put(Session{}), ErrBadRequest)

	assert.True(t, store.Remove("s1"))
	assert.False(t, store.Remove("s1"))
	_, err = store.Get("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ActiveSessions))
}

func TestStoreMutators(t *testing.T) {
	store := NewStore(nil)
	require.Nil(t, store.Put(Session{ID: "s1"}))

	assert.True(t, store.SetQRCode("s1", "qr-1"))
	sess, _ := store.Get("s1")
	assert.Equal(t, StatusQRReady, sess.Status)
	assert.Equal(t, "qr-1", sess.QRCode)

	sess, ok := store.SetStatus("s1", "", "unknownDriverState")
	require.True(t, ok)
	assert.Equal(t, StatusQRReady, sess.Status, "unmapped driver status keeps the lifecycle state")
	assert.Equal(t, "unknownDriverState", sess.DriverStatus)
	assert.Equal(t, "qr-1", sess.QRCode)

	sess, ok = store.SetStatus("s1", StatusConnected, "isLogged")
	require.True(t, ok)
	assert.Equal(t, StatusConnected, sess.Status)
	assert.Empty(t, sess.QRCode, "qr code is dropped once paired")

	client := &fakeClient{}
	assert.True(t, store.SetClient("s1", client))
	sess, _ = store.Get("s1")
	assert.True(t, sess.HasClient())

	assert.True(t, store.MarkError("s1"))
	sess, _ = store.Get("s1")
	assert.Equal(t, StatusError, sess.Status)

	assert.False(t, store.SetQRCode("missing", "qr"))
	_, ok = store.SetStatus("missing", StatusConnected, "isLogged")
	assert.False(t, ok)
	assert.False(t, store.SetClient("missing", client))
	assert.False(t, store.MarkError("missing"))
}

func TestStoreSnapshotsAreCopies(t *testing.T) {
	store := NewStore(nil)
	require.Nil(t, store.Put(Session{ID: "s1"}))

	sess, _ := store.Get("s1")
	sess.Status = StatusConnected
	sess.QRCode = "tampered"

	again, _ := store.Get("s1")
	assert.Equal(t, StatusInitializing, again.Status)
	assert.Empty(t, again.QRCode)
}

func TestStoreListOrdered(t *testing.T) {
	store := NewStore(nil)
	base := time.Now()
	for i := 3; i > 0; i-- {
		require.Nil(t, store.Put(Session{ID: fmt.Sprintf("s%d", i), CreatedAt: base.Add(time.Duration(i) * time.Second)}))
	}
	list := store.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"s1", "s2", "s3"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, 3, store.Len())
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("s%d", i)
		require.Nil(t, store.Put(Session{ID: id}))
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.SetQRCode(id, fmt.Sprintf("qr-%d", j))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.SetStatus(id, StatusQRReady, "notLogged")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sess, err := store.Get(id)
				if assert.Nil(t, err) {
					assert.Contains(t, []Status{StatusInitializing, StatusQRReady}, sess.Status)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, store.Len())
}
