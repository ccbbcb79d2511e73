package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/tansive/chatbridge/internal/common/httpx"
)

// ResponseHandlerParam defines the configuration for HTTP route handlers.
type ResponseHandlerParam struct {
	Method  string               // HTTP method (GET, POST, etc.)
	Path    string               // URL path pattern
	Handler httpx.RequestHandler // handler function for the route
}

// API serves the session endpoints on top of a Coordinator.
type API struct {
	coordinator *Coordinator
	upgrader    websocket.Upgrader
}

func NewAPI(c *Coordinator) *API {
	return &API{
		coordinator: c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the service is CORS-open, browser dashboards on other origins may subscribe
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (a *API) handlers() []ResponseHandlerParam {
	return []ResponseHandlerParam{
		{
			Method:  http.MethodPost,
			Path:    "/connect-whatsapp",
			Handler: a.connectSession,
		},
		{
			Method:  http.MethodGet,
			Path:    "/whatsapp-status/{sessionId}",
			Handler: a.getSessionStatus,
		},
		{
			Method:  http.MethodGet,
			Path:    "/whatsapp-qr/{sessionId}",
			Handler: a.getSessionQR,
		},
		{
			Method:  http.MethodGet,
			Path:    "/whatsapp-chats/{sessionId}",
			Handler: a.getChats,
		},
		{
			Method:  http.MethodPost,
			Path:    "/analyze-whatsapp-chat",
			Handler: a.analyzeChat,
		},
		{
			Method:  http.MethodPost,
			Path:    "/disconnect-whatsapp/{sessionId}",
			Handler: a.disconnectSession,
		},
	}
}

// Router registers the request/response endpoints.
func (a *API) Router(r chi.Router) {
	for _, handler := range a.handlers() {
		r.Method(handler.Method, handler.Path, httpx.WrapHttpRsp(handler.Handler))
	}
}

// StreamRouter registers the long-lived websocket endpoints. They must not be
// mounted behind a request timeout.
func (a *API) StreamRouter(r chi.Router) {
	r.Method(http.MethodGet, "/whatsapp-status/{sessionId}/events", http.HandlerFunc(a.streamSessionEvents))
}
