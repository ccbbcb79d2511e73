package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultJanitorInterval = 15 * time.Second

// Reap reasons.
const (
	ReapError        = "error"
	ReapDisconnected = "disconnected"
	ReapStale        = "stale"
)

// StartJanitor reaps dead and abandoned sessions every interval until ctx ends.
func (c *Coordinator) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Reap(ctx, time.Now())
			}
		}
	}()
}

// Reap tears down sessions that are in error, reported a disconnect, or did not
// connect within the pairing grace period. It returns the number of sessions
// removed.
func (c *Coordinator) Reap(ctx context.Context, now time.Time) int {
	reaped := 0
	for _, sess := range c.store.List() {
		reason := c.reapReason(sess, now)
		if reason == "" {
			continue
		}
		logger := log.Ctx(ctx).With().Str("session_id", sess.ID).Str("reason", reason).Logger()
		if sess.HasClient() {
			if err := sess.Client.Close(ctx); err != nil {
				c.metrics.ProviderError("close")
				logger.Warn().Err(err).Msg("close failed while reaping")
			}
		}
		c.remove(sess.ID)
		c.metrics.Reaped(reason)
		logger.Info().Msg("session reaped")
		reaped++
	}
	return reaped
}

func (c *Coordinator) reapReason(sess Session, now time.Time) string {
	switch sess.Status {
	case StatusError:
		return ReapError
	case StatusDisconnected:
		return ReapDisconnected
	case StatusConnected:
		return ""
	}
	if now.Sub(sess.CreatedAt) >= c.opts.PairingGrace {
		return ReapStale
	}
	return ""
}
