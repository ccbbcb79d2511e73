package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tansive/chatbridge/internal/common/logtrace"
)

// SendJsonRsp writes msg as JSON. Strings and byte slices that already hold valid
// JSON are written as-is, so raw payloads from downstream services pass through
// untouched. Location is only set for 201 responses.
func SendJsonRsp(ctx context.Context, w http.ResponseWriter, statusCode int, msg any, location ...string) {
	var msgJson []byte
	switch v := msg.(type) {
	case json.RawMessage:
		msgJson = v
	case []byte:
		if json.Valid(v) {
			msgJson = v
		}
	case string:
		if json.Valid([]byte(v)) {
			msgJson = []byte(v)
		}
	}
	if msgJson == nil {
		var err error
		msgJson, err = json.Marshal(msg)
		if err != nil {
			log.Ctx(ctx).Err(err).Msg("unable to marshal json")
			ErrApplicationError("Id: " + logtrace.RequestIdFromContext(ctx)).Send(w)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if statusCode == http.StatusCreated && len(location) > 0 {
		w.Header().Set("Location", location[0])
	}
	w.WriteHeader(statusCode)
	w.Write(msgJson)
}
