package session

import (
	"sync/atomic"

	"github.com/tansive/chatbridge/internal/common/apperrors"
)

type resolution int

const (
	resolvedQR resolution = iota + 1
	resolvedTimeout
	resolvedError
	resolvedCanceled
)

func (r resolution) String() string {
	switch r {
	case resolvedQR:
		return "qr"
	case resolvedTimeout:
		return "timeout"
	case resolvedError:
		return "error"
	case resolvedCanceled:
		return "canceled"
	default:
		return "pending"
	}
}

type outcome struct {
	kind   resolution
	qrCode string
	err    apperrors.Error
}

// pendingCreation tracks one in-flight creation request. Every racing path calls
// resolve; only the first call is recorded.
type pendingCreation struct {
	sessionID string
	done      atomic.Bool
	result    chan outcome
}

func newPendingCreation(sessionID string) *pendingCreation {
	return &pendingCreation{
		sessionID: sessionID,
		result:    make(chan outcome, 1),
	}
}

// resolve records o if the request is still pending and reports whether it won.
func (p *pendingCreation) resolve(o outcome) bool {
	if !p.done.CompareAndSwap(false, true) {
		return false
	}
	p.result <- o
	return true
}
