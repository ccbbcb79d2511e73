// Package httpx adapts request handlers that return (*Response, error) into
// http.HandlerFunc values, rendering apperrors failures into the service's JSON
// error envelope.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tansive/chatbridge/internal/common/apperrors"
)

// GetRequestData decodes a JSON request body into data. Only POST and PUT are accepted.
func GetRequestData(r *http.Request, data any) error {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return ErrReqMethodNotSupported()
	}
	if r.Body == nil || r.Body == http.NoBody {
		log.Ctx(r.Context()).Error().Msg("empty request body")
		return ErrUnableToParseReqData()
	}
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		return ErrUnableToParseReqData().WithDetails(err.Error())
	}
	return nil
}

// Response describes a successful handler result. Response is marshaled as JSON
// unless ContentType names something else, in which case Body is written verbatim.
type Response struct {
	StatusCode  int
	Location    string
	Response    any
	ContentType string
	Body        []byte
}

// RequestHandler handles a request and returns either a response or an error.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp renders the handler's result. Errors of type *Error and
// apperrors.Error keep their status code; anything else becomes a 500.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			log.Ctx(r.Context()).Debug().Err(err).Msg("request failed")
			SendAnyError(w, err)
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		if rsp.StatusCode == 0 {
			rsp.StatusCode = http.StatusOK
		}

		if rsp.ContentType == "" || rsp.ContentType == "application/json" {
			var location []string
			if rsp.Location != "" {
				location = append(location, rsp.Location)
			}
			SendJsonRsp(r.Context(), w, rsp.StatusCode, rsp.Response, location...)
			return
		}
		w.Header().Set("Content-Type", rsp.ContentType)
		w.WriteHeader(rsp.StatusCode)
		w.Write(rsp.Body)
	})
}

// SendAnyError renders err into the error envelope, picking the status code from
// the error when it carries one.
func SendAnyError(w http.ResponseWriter, err error) {
	var httperror *Error
	if errors.As(err, &httperror) {
		httperror.Send(w)
		return
	}
	if appErr, ok := err.(apperrors.Error); ok {
		SendError(w, appErr)
		return
	}
	ErrApplicationError(err.Error()).Send(w)
}
