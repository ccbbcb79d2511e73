package httpclient

import (
	"context"
	"net/http"
)

// HTTPClientInterface is the subset of HTTPClient used by outbound collaborators,
// so tests can substitute a fake.
type HTTPClientInterface interface {
	DoRequest(ctx context.Context, opts RequestOptions) ([]byte, string, error)
	PostJSON(ctx context.Context, path string, v any) ([]byte, error)
	ResolveURL(path string, scheme string) (string, error)
	AuthHeader() http.Header
}

var _ HTTPClientInterface = &HTTPClient{}

// StaticConfig is a Configurator with fixed values.
type StaticConfig struct {
	ServerURL string
	APIKey    string
}

func (s StaticConfig) GetServerURL() string { return s.ServerURL }
func (s StaticConfig) GetAPIKey() string    { return s.APIKey }
