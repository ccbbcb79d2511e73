package session

import (
	"net/http"

	"github.com/tansive/chatbridge/internal/common/apperrors"
)

var (
	// ErrSessionError is the base error for all session-related errors.
	ErrSessionError apperrors.Error = apperrors.New("error in processing session").SetStatusCode(http.StatusInternalServerError)

	// ErrSessionNotFound is returned for an identifier that was never created or has been removed.
	ErrSessionNotFound apperrors.Error = ErrSessionError.New("Session not found").SetStatusCode(http.StatusNotFound)

	// ErrPairingTimeout is returned when no QR code arrived within the pairing window.
	ErrPairingTimeout apperrors.Error = ErrSessionError.New("QR Code generation timeout").SetStatusCode(http.StatusInternalServerError)

	// ErrProviderStartFailure is returned when the driver could not start the external session.
	ErrProviderStartFailure apperrors.Error = ErrSessionError.New("Failed to connect to WhatsApp").SetStatusCode(http.StatusInternalServerError)

	// ErrProviderOperationFailure is returned when a chats, messages or close call to the driver fails.
	ErrProviderOperationFailure apperrors.Error = ErrSessionError.New("WhatsApp operation failed").SetStatusCode(http.StatusInternalServerError)

	// ErrDownstreamAnalysisFailure is returned when the analysis service fails or answers with a non-success status.
	ErrDownstreamAnalysisFailure apperrors.Error = ErrSessionError.New("Analysis failed").SetStatusCode(http.StatusInternalServerError)

	// ErrQRNotAvailable is returned when the session is not currently waiting to be paired.
	ErrQRNotAvailable apperrors.Error = ErrSessionError.New("QR code not available").SetStatusCode(http.StatusNotFound)

	// ErrBadRequest is returned for malformed or invalid requests.
	ErrBadRequest apperrors.Error = ErrSessionError.New("bad request").SetStatusCode(http.StatusBadRequest)

	// ErrCanceled is returned when the caller went away before creation resolved.
	ErrCanceled apperrors.Error = ErrSessionError.New("session creation canceled").SetStatusCode(http.StatusRequestTimeout)
)

// Per-operation failures surfaced by the HTTP handlers.
var (
	ErrFetchChats   apperrors.Error = ErrProviderOperationFailure.New("Failed to fetch chats")
	ErrFetchHistory apperrors.Error = ErrProviderOperationFailure.New("Failed to fetch chat history")
	ErrDisconnect   apperrors.Error = ErrProviderOperationFailure.New("Failed to disconnect")
)

// ErrAlreadyExists is returned when a session id is registered twice.
var ErrAlreadyExists apperrors.Error = ErrSessionError.New("session already exists").SetStatusCode(http.StatusConflict)
