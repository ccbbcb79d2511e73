// Package httpclient is a small JSON-over-HTTP client used for the service's
// outbound calls: the automation driver sidecar and the analysis service. Every
// request is a single attempt; callers decide whether to retry.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Configurator supplies the target server and optional credentials.
type Configurator interface {
	GetServerURL() string
	GetAPIKey() string
}

// HTTPError is a non-2xx response from the server.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type HTTPClient struct {
	config     Configurator
	httpClient *http.Client
}

type ClientOptions struct {
	Timeout time.Duration // per-request timeout, zero means none
}

func NewClient(config Configurator, opts ...ClientOptions) *HTTPClient {
	clientOpts := ClientOptions{}
	if len(opts) > 0 {
		clientOpts = opts[0]
	}
	return &HTTPClient{
		config:     config,
		httpClient: &http.Client{Timeout: clientOpts.Timeout},
	}
}

// RequestOptions describes one request. QueryParams and Body are optional.
type RequestOptions struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Body        []byte
}

// DoRequest sends the request and returns the response body and the Location
// header. Responses with status >= 400 become *HTTPError, using the "error" field
// of a JSON body as the message when present.
func (c *HTTPClient) DoRequest(ctx context.Context, opts RequestOptions) ([]byte, string, error) {
	req, err := c.newRequest(ctx, opts)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, "", toHTTPError(resp.StatusCode, body)
	}
	return body, resp.Header.Get("Location"), nil
}

// PostJSON marshals v and posts it to p.
func (c *HTTPClient) PostJSON(ctx context.Context, p string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	body, _, err := c.DoRequest(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   p,
		Body:   data,
	})
	return body, err
}

// ResolveURL joins the escaped path p onto the server URL, switching to the given
// scheme when it is not empty. Escaped segments are kept as sent. Used to derive
// websocket URLs from the configured http(s) base.
func (c *HTTPClient) ResolveURL(p string, scheme string) (string, error) {
	u, err := url.Parse(c.config.GetServerURL())
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	escaped := path.Join("/", u.EscapedPath(), p)
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("invalid request path: %w", err)
	}
	u.Path, u.RawPath = unescaped, escaped
	if scheme != "" {
		u.Scheme = scheme
	}
	return u.String(), nil
}

// AuthHeader returns the Authorization header to send, or an empty header.
func (c *HTTPClient) AuthHeader() http.Header {
	h := http.Header{}
	if key := c.config.GetAPIKey(); key != "" {
		h.Set("Authorization", "Bearer "+key)
	}
	return h
}

func (c *HTTPClient) newRequest(ctx context.Context, opts RequestOptions) (*http.Request, error) {
	target, err := c.ResolveURL(opts.Path, "")
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(target)
	q := u.Query()
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	var bodyReader io.Reader
	if opts.Body != nil {
		bodyReader = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.AuthHeader() {
		req.Header[k] = v
	}
	return req, nil
}

func toHTTPError(status int, body []byte) *HTTPError {
	if msg := gjson.GetBytes(body, "error"); msg.Exists() && msg.String() != "" {
		return &HTTPError{StatusCode: status, Message: msg.String()}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &HTTPError{StatusCode: status, Message: msg}
}
