// Package provider defines the boundary between the session coordinator and the
// browser automation driver that actually hosts a chat client session.
package provider

import (
	"context"
	"encoding/json"
)

// Callbacks receive asynchronous notifications for one session. Either callback
// may fire on a driver goroutine, before or after CreateSession returns, and any
// number of times over the session's lifetime.
type Callbacks struct {
	// OnQR is called with the pairing code payload, usually a base64 PNG data URL.
	OnQR func(qrCode string)
	// OnStatus is called with the driver's raw status string.
	OnStatus func(status string)
}

// Client is the handle for an established external session. It is owned by the
// session it was created for.
type Client interface {
	GetChats(ctx context.Context) (json.RawMessage, error)
	GetMessages(ctx context.Context, chatID string) ([]json.RawMessage, error)
	Close(ctx context.Context) error
}

// Driver starts external sessions.
type Driver interface {
	CreateSession(ctx context.Context, sessionID string, cb Callbacks) (Client, error)
}
