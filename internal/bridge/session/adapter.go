package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/chatbridge/internal/bridge/eventbus"
	"github.com/tansive/chatbridge/internal/bridge/observability"
	"github.com/tansive/chatbridge/internal/bridge/provider"
)

// QREvent is published on the qr topic of a session.
type QREvent struct {
	SessionID string `json:"sessionId"`
	QRCode    string `json:"qrCode"`
}

// StatusEvent is published on the status topic of a session.
type StatusEvent struct {
	SessionID    string `json:"sessionId"`
	Status       Status `json:"status"`
	DriverStatus string `json:"driverStatus"`
}

// driverStatuses maps the automation driver's status strings to lifecycle states.
var driverStatuses = map[string]Status{
	"isLogged":              StatusConnected,
	"qrReadSuccess":         StatusConnected,
	"inChat":                StatusConnected,
	"chatsAvailable":        StatusConnected,
	"successChat":           StatusConnected,
	"notLogged":             StatusQRReady,
	"waitForLogin":          StatusQRReady,
	"browserClose":          StatusDisconnected,
	"autocloseCalled":       StatusDisconnected,
	"desconnectedMobile":    StatusDisconnected,
	"serverClose":           StatusDisconnected,
	"deleteToken":           StatusDisconnected,
	"qrReadFail":            StatusError,
	"qrReadError":           StatusError,
	"noOpenBrowser":         StatusError,
	"erroPageWhatsapp":      StatusError,
	"serverWssNotConnected": StatusError,
}

// MapDriverStatus returns the lifecycle status for a raw driver status, or "" when
// the driver status does not change the lifecycle state.
func MapDriverStatus(driverStatus string) Status {
	return driverStatuses[driverStatus]
}

// Adapter starts external sessions through a provider.Driver and turns the
// driver's callbacks into store updates and bus events.
type Adapter struct {
	driver         provider.Driver
	store          *Store
	bus            *eventbus.EventBus
	metrics        *observability.Metrics
	publishTimeout time.Duration
}

func NewAdapter(driver provider.Driver, store *Store, bus *eventbus.EventBus, metrics *observability.Metrics, publishTimeout time.Duration) *Adapter {
	if publishTimeout <= 0 {
		publishTimeout = 100 * time.Millisecond
	}
	return &Adapter{
		driver:         driver,
		store:          store,
		bus:            bus,
		metrics:        metrics,
		publishTimeout: publishTimeout,
	}
}

// StartSession asks the driver to create the external session for id. Callbacks
// may arrive before or after it returns.
func (a *Adapter) StartSession(ctx context.Context, id string) (provider.Client, error) {
	logger := log.Ctx(ctx).With().Str("session_id", id).Logger()
	return a.driver.CreateSession(ctx, id, provider.Callbacks{
		OnQR: func(qrCode string) {
			a.handleQR(&logger, id, qrCode)
		},
		OnStatus: func(driverStatus string) {
			a.handleStatus(&logger, id, driverStatus)
		},
	})
}

func (a *Adapter) handleQR(logger *zerolog.Logger, id string, qrCode string) {
	a.metrics.Event(string(eventbus.KindQR))
	if !a.store.SetQRCode(id, qrCode) {
		logger.Debug().Msg("qr code for unknown session dropped")
		return
	}
	logger.Info().Msg("qr code received")
	a.bus.Publish(eventbus.Topic(id, eventbus.KindQR), QREvent{SessionID: id, QRCode: qrCode}, a.publishTimeout)
}

func (a *Adapter) handleStatus(logger *zerolog.Logger, id string, driverStatus string) {
	a.metrics.Event(string(eventbus.KindStatus))
	sess, ok := a.store.SetStatus(id, MapDriverStatus(driverStatus), driverStatus)
	if !ok {
		logger.Debug().Str("driver_status", driverStatus).Msg("status for unknown session dropped")
		return
	}
	logger.Info().Str("driver_status", driverStatus).Str("status", string(sess.Status)).Msg("session status changed")
	a.bus.Publish(eventbus.Topic(id, eventbus.KindStatus), StatusEvent{
		SessionID:    id,
		Status:       sess.Status,
		DriverStatus: driverStatus,
	}, a.publishTimeout)
}
