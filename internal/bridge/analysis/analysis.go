// Package analysis forwards chat transcripts to the downstream analysis service.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/chatbridge/internal/common/httpclient"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const DefaultURL = "http://localhost:8000"

// Client calls POST {url}/analyze with {"transcript": ...}. Each call is a single
// attempt.
type Client struct {
	http httpclient.HTTPClientInterface
}

func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		http: httpclient.NewClient(httpclient.StaticConfig{ServerURL: url}, httpclient.ClientOptions{Timeout: timeout}),
	}
}

// Analyze returns the service's JSON answer verbatim.
func (c *Client) Analyze(ctx context.Context, transcript string) (json.RawMessage, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "transcript", transcript)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	rsp, _, err := c.http.DoRequest(ctx, httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   "/analyze",
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(rsp) {
		log.Ctx(ctx).Error().Int("bytes", len(rsp)).Msg("analysis service returned invalid JSON")
		return nil, fmt.Errorf("analysis service returned invalid JSON")
	}
	return json.RawMessage(rsp), nil
}
