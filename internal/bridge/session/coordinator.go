package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/chatbridge/internal/bridge/chatfmt"
	"github.com/tansive/chatbridge/internal/bridge/eventbus"
	"github.com/tansive/chatbridge/internal/bridge/observability"
	"github.com/tansive/chatbridge/internal/bridge/provider"
	"github.com/tansive/chatbridge/internal/common/apperrors"
	"github.com/tansive/chatbridge/internal/common/uuid"
)

const (
	DefaultQRTimeout    = 30 * time.Second
	DefaultPairingGrace = 2 * time.Minute
)

// Analyzer forwards a transcript to the analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (json.RawMessage, error)
}

// Options tune the coordinator. Zero values select the defaults.
type Options struct {
	QRTimeout      time.Duration
	PairingGrace   time.Duration
	PublishTimeout time.Duration
	Location       *time.Location
	NewID          func() string
}

// CreateResult is the pairing payload returned by a successful Create.
type CreateResult struct {
	SessionID string `json:"sessionId"`
	QRCode    string `json:"qrCode"`
	Status    Status `json:"status"`
}

// Coordinator owns the session lifecycle: it creates sessions, resolves each
// creation request exactly once and serves queries against established sessions.
type Coordinator struct {
	store    *Store
	bus      *eventbus.EventBus
	adapter  *Adapter
	analyzer Analyzer
	metrics  *observability.Metrics
	opts     Options
}

func NewCoordinator(store *Store, bus *eventbus.EventBus, driver provider.Driver, analyzer Analyzer, metrics *observability.Metrics, opts Options) *Coordinator {
	if opts.QRTimeout <= 0 {
		opts.QRTimeout = DefaultQRTimeout
	}
	if opts.PairingGrace <= 0 {
		opts.PairingGrace = DefaultPairingGrace
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Coordinator{
		store:    store,
		bus:      bus,
		adapter:  NewAdapter(driver, store, bus, metrics, opts.PublishTimeout),
		analyzer: analyzer,
		metrics:  metrics,
		opts:     opts,
	}
}

func (c *Coordinator) Store() *Store {
	return c.store
}

func (c *Coordinator) Bus() *eventbus.EventBus {
	return c.bus
}

// Create registers a new session, starts it and waits for the first QR code, the
// pairing timeout, a start failure or the end of ctx, whichever happens first.
//
// On timeout the external session keeps running and the entry stays in the store
// so callers can keep polling; the janitor removes it if it never connects.
func (c *Coordinator) Create(ctx context.Context) (*CreateResult, apperrors.Error) {
	id := c.opts.NewID()
	logger := log.Ctx(ctx).With().Str("session_id", id).Logger()
	ctx = logger.WithContext(ctx)

	if err := c.store.Put(Session{ID: id, Status: StatusInitializing}); err != nil {
		return nil, err
	}
	logger.Info().Msg("creating session")
	started := time.Now()

	p := newPendingCreation(id)

	// the subscription must be in place before the driver can emit a QR code
	sub := c.bus.SubscribeOnce(id, eventbus.KindQR, func(e eventbus.Event) {
		qr, ok := e.Data.(QREvent)
		if !ok {
			return
		}
		p.resolve(outcome{kind: resolvedQR, qrCode: qr.QRCode})
	})
	timer := time.AfterFunc(c.opts.QRTimeout, func() {
		p.resolve(outcome{
			kind: resolvedTimeout,
			err:  ErrPairingTimeout.WithDetails("Failed to generate QR code within the timeout period"),
		})
	})
	defer func() {
		timer.Stop()
		sub.Cancel()
	}()

	go c.start(context.WithoutCancel(ctx), p)

	var o outcome
	select {
	case o = <-p.result:
	case <-ctx.Done():
		if !p.resolve(outcome{kind: resolvedCanceled, err: ErrCanceled.WithDetails(ctx.Err().Error())}) {
			logger.Debug().Msg("context ended after creation resolved")
		}
		o = <-p.result
	}

	c.metrics.CreationOutcome(o.kind.String())
	switch o.kind {
	case resolvedQR:
		c.metrics.ObservePairingLatency(time.Since(started))
		logger.Info().Msg("session ready for pairing")
		return &CreateResult{SessionID: id, QRCode: o.qrCode, Status: StatusQRReady}, nil
	case resolvedTimeout:
		logger.Error().Dur("timeout", c.opts.QRTimeout).Msg("QR code generation timeout")
	default:
		logger.Error().Str("outcome", o.kind.String()).Str("reason", o.err.Details()).Msg("session creation failed")
	}
	return nil, o.err
}

// start runs the driver create call. It outlives the creation request when the
// request resolves first.
func (c *Coordinator) start(ctx context.Context, p *pendingCreation) {
	logger := log.Ctx(ctx)
	client, err := c.adapter.StartSession(ctx, p.sessionID)
	if err != nil {
		c.metrics.ProviderError("create_session")
		c.store.MarkError(p.sessionID)
		if !p.resolve(outcome{
			kind: resolvedError,
			err:  ErrProviderStartFailure.Err(err).WithDetails(err.Error()),
		}) {
			logger.Error().Err(err).Msg("session start failed after request resolved")
		}
		return
	}
	if !c.store.SetClient(p.sessionID, client) {
		// closed while starting; the handle has no owner left
		logger.Info().Msg("session removed while starting, closing client")
		if err := client.Close(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to close orphaned client")
		}
		p.resolve(outcome{kind: resolvedError, err: ErrProviderStartFailure.WithDetails("session closed during start")})
		return
	}
	logger.Info().Msg("external session started")
}

// GetStatus returns a snapshot of the session.
func (c *Coordinator) GetStatus(id string) (Session, apperrors.Error) {
	return c.store.Get(id)
}

// GetQRCode returns the current pairing code while the session awaits pairing.
func (c *Coordinator) GetQRCode(id string) (string, apperrors.Error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return "", err
	}
	if sess.Status != StatusQRReady || sess.QRCode == "" {
		return "", ErrQRNotAvailable.WithDetails(fmt.Sprintf("session is %s", sess.Status))
	}
	return sess.QRCode, nil
}

func (c *Coordinator) client(id string) (provider.Client, apperrors.Error) {
	sess, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !sess.HasClient() {
		return nil, ErrSessionNotFound.WithDetails("session has no established client")
	}
	return sess.Client, nil
}

// GetChats returns the driver's chat list. Single attempt. Every failure,
// including an unknown session, is reported as ErrFetchChats.
func (c *Coordinator) GetChats(ctx context.Context, id string) (json.RawMessage, apperrors.Error) {
	client, aerr := c.client(id)
	if aerr != nil {
		return nil, ErrFetchChats.Err(aerr).WithDetails(failureDetails(aerr))
	}
	chats, err := client.GetChats(ctx)
	if err != nil {
		c.metrics.ProviderError("get_chats")
		log.Ctx(ctx).Error().Err(err).Str("session_id", id).Msg("failed to fetch chats")
		return nil, ErrFetchChats.Err(err).WithDetails(err.Error())
	}
	return chats, nil
}

// GetChatHistoryFormatted returns the messages of chatID rendered as a transcript.
func (c *Coordinator) GetChatHistoryFormatted(ctx context.Context, id string, chatID string) (string, apperrors.Error) {
	client, aerr := c.client(id)
	if aerr != nil {
		return "", aerr
	}
	messages, err := client.GetMessages(ctx, chatID)
	if err != nil {
		c.metrics.ProviderError("get_messages")
		log.Ctx(ctx).Error().Err(err).Str("session_id", id).Str("chat_id", chatID).Msg("failed to fetch chat history")
		return "", ErrFetchHistory.Err(err).WithDetails(err.Error())
	}
	return chatfmt.Format(messages, c.opts.Location), nil
}

// AnalyzeChat sends the formatted history of chatID to the analysis service. Every
// failure is reported as ErrDownstreamAnalysisFailure.
func (c *Coordinator) AnalyzeChat(ctx context.Context, id string, chatID string) (json.RawMessage, apperrors.Error) {
	transcript, aerr := c.GetChatHistoryFormatted(ctx, id, chatID)
	if aerr != nil {
		return nil, ErrDownstreamAnalysisFailure.Err(aerr).WithDetails(failureDetails(aerr))
	}
	if c.analyzer == nil {
		return nil, ErrDownstreamAnalysisFailure.WithDetails("no analysis service configured")
	}
	analysis, err := c.analyzer.Analyze(ctx, transcript)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("session_id", id).Msg("chat analysis failed")
		return nil, ErrDownstreamAnalysisFailure.Err(err).WithDetails(err.Error())
	}
	return analysis, nil
}

// CloseSession closes the external session and removes the entry once the close
// is confirmed. Closing an unknown id succeeds.
func (c *Coordinator) CloseSession(ctx context.Context, id string) apperrors.Error {
	sess, err := c.store.Get(id)
	if err != nil {
		return nil
	}
	if sess.HasClient() {
		if err := sess.Client.Close(ctx); err != nil {
			c.metrics.ProviderError("close")
			log.Ctx(ctx).Error().Err(err).Str("session_id", id).Msg("failed to close session")
			return ErrDisconnect.Err(err).WithDetails(err.Error())
		}
	}
	c.remove(id)
	log.Ctx(ctx).Info().Str("session_id", id).Msg("session closed")
	return nil
}

func failureDetails(err apperrors.Error) string {
	if d := err.Details(); d != "" {
		return err.Error() + ": " + d
	}
	return err.Error()
}

func (c *Coordinator) remove(id string) {
	c.store.Remove(id)
	c.bus.CloseAllForPattern(eventbus.SessionPattern(id))
}

// Shutdown closes every session, best effort.
func (c *Coordinator) Shutdown(ctx context.Context) {
	for _, sess := range c.store.List() {
		if err := c.CloseSession(ctx, sess.ID); err != nil {
			log.Ctx(ctx).Error().Str("session_id", sess.ID).Msg("session not closed on shutdown")
			c.remove(sess.ID)
		}
	}
}
