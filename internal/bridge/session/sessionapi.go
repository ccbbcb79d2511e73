package session

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/h2non/filetype"
	"github.com/tansive/chatbridge/internal/common/httpx"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type analyzeRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	ChatID    string `json:"chatId" validate:"required"`
}

type statusRsp struct {
	Status Status `json:"status"`
}

type chatsRsp struct {
	Chats any `json:"chats"`
}

// connectSession creates a session and answers with its first QR code.
func (a *API) connectSession(r *http.Request) (*httpx.Response, error) {
	result, err := a.coordinator.Create(r.Context())
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   result,
	}, nil
}

func (a *API) getSessionStatus(r *http.Request) (*httpx.Response, error) {
	sess, err := a.coordinator.GetStatus(chi.URLParam(r, "sessionId"))
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   &statusRsp{Status: sess.Status},
	}, nil
}

// getSessionQR serves the current pairing code as an image.
func (a *API) getSessionQR(r *http.Request) (*httpx.Response, error) {
	qrCode, err := a.coordinator.GetQRCode(chi.URLParam(r, "sessionId"))
	if err != nil {
		return nil, err
	}
	img, ok := decodeQRImage(qrCode)
	if !ok {
		return nil, ErrQRNotAvailable.WithDetails("qr code is not an image")
	}
	return &httpx.Response{
		StatusCode:  http.StatusOK,
		ContentType: imageContentType(img),
		Body:        img,
	}, nil
}

func (a *API) getChats(r *http.Request) (*httpx.Response, error) {
	chats, err := a.coordinator.GetChats(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   &chatsRsp{Chats: chats},
	}, nil
}

func (a *API) analyzeChat(r *http.Request) (*httpx.Response, error) {
	req := &analyzeRequest{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, ErrBadRequest.WithDetails("sessionId and chatId are required")
	}
	analysis, err := a.coordinator.AnalyzeChat(r.Context(), req.SessionID, req.ChatID)
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   analysis,
	}, nil
}

func (a *API) disconnectSession(r *http.Request) (*httpx.Response, error) {
	if err := a.coordinator.CloseSession(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   &statusRsp{Status: StatusDisconnected},
	}, nil
}

// decodeQRImage accepts a base64 data URL or bare base64 payload.
func decodeQRImage(qrCode string) ([]byte, bool) {
	payload := qrCode
	if strings.HasPrefix(payload, "data:") {
		i := strings.Index(payload, ",")
		if i < 0 || !strings.Contains(payload[:i], ";base64") {
			return nil, false
		}
		payload = payload[i+1:]
	}
	img, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(img) == 0 {
		return nil, false
	}
	return img, true
}

func imageContentType(img []byte) string {
	kind, err := filetype.Match(img)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
