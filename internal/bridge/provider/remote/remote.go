// Package remote drives chat client sessions hosted by an automation sidecar
// process (a headless browser running the chat web client) over HTTP and
// websocket.
//
// The sidecar exposes:
//
//	GET  /version                               {"version":"1.2.0"}
//	POST /sessions                              {"sessionId":"..."}
//	GET  /sessions/{id}/events                  websocket, {"type":"qr"|"status","data":"..."}
//	GET  /sessions/{id}/chats                   JSON array
//	GET  /sessions/{id}/chats/{chatId}/messages JSON array
//	POST /sessions/{id}/close
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tansive/chatbridge/internal/bridge/provider"
	"github.com/tansive/chatbridge/internal/common/httpclient"
	"github.com/tidwall/gjson"
)

const (
	DefaultVersionConstraint = ">= 1.0.0, < 2.0.0"

	frameQR     = "qr"
	frameStatus = "status"

	// reported when the event stream drops without a close from our side
	statusStreamLost = "serverClose"
)

var (
	ErrIncompatibleDriver = errors.New("incompatible driver version")
	ErrInvalidResponse    = errors.New("invalid driver response")
	ErrInvalidID          = errors.New("invalid session or chat id")
)

type Config struct {
	URL               string
	APIKey            string
	VersionConstraint string
	RequestTimeout    time.Duration
	ProbeAttempts     uint
	ProbeDelay        time.Duration
}

// Driver implements provider.Driver against the sidecar.
type Driver struct {
	http          httpclient.HTTPClientInterface
	dialer        *websocket.Dialer
	constraint    *semver.Constraints
	probeAttempts uint
	probeDelay    time.Duration
}

var _ provider.Driver = (*Driver)(nil)

func New(cfg Config) (*Driver, error) {
	if cfg.URL == "" {
		return nil, errors.New("driver url is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid driver url: %w", err)
	}
	if cfg.VersionConstraint == "" {
		cfg.VersionConstraint = DefaultVersionConstraint
	}
	constraint, err := semver.NewConstraint(cfg.VersionConstraint)
	if err != nil {
		return nil, fmt.Errorf("invalid driver version constraint: %w", err)
	}
	if cfg.ProbeAttempts == 0 {
		cfg.ProbeAttempts = 5
	}
	if cfg.ProbeDelay <= 0 {
		cfg.ProbeDelay = time.Second
	}
	return &Driver{
		http: httpclient.NewClient(httpclient.StaticConfig{
			ServerURL: cfg.URL,
			APIKey:    cfg.APIKey,
		}, httpclient.ClientOptions{Timeout: cfg.RequestTimeout}),
		dialer:        &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		constraint:    constraint,
		probeAttempts: cfg.ProbeAttempts,
		probeDelay:    cfg.ProbeDelay,
	}, nil
}

// Probe waits for the sidecar to answer /version and checks the version against
// the configured constraint. An incompatible version is not retried.
func (d *Driver) Probe(ctx context.Context) (*semver.Version, error) {
	var version *semver.Version
	err := retry.Do(func() error {
		v, err := d.Check(ctx)
		if err != nil {
			if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrIncompatibleDriver) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		version = v
		return nil
	}, retry.Attempts(d.probeAttempts),
		retry.Delay(d.probeDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Msg("driver not reachable")
		}))
	if err != nil {
		return nil, err
	}
	return version, nil
}

// Check asks the sidecar for its version once.
func (d *Driver) Check(ctx context.Context) (*semver.Version, error) {
	body, _, err := d.http.DoRequest(ctx, httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   "/version",
	})
	if err != nil {
		return nil, err
	}
	v, err := semver.NewVersion(gjson.GetBytes(body, "version").String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !d.constraint.Check(v) {
		return nil, fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatibleDriver, v, d.constraint)
	}
	return v, nil
}

// CreateSession opens the event stream for id and then asks the sidecar to start
// the session, so no event emitted during start is missed.
func (d *Driver) CreateSession(ctx context.Context, id string, cb provider.Callbacks) (provider.Client, error) {
	conn, err := d.dialEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	c := &client{
		driver: d,
		id:     id,
		conn:   conn,
		done:   make(chan struct{}),
	}
	go c.readEvents(ctx, cb)

	if _, err := d.http.PostJSON(ctx, "/sessions", map[string]string{"sessionId": id}); err != nil {
		c.closeStream()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return c, nil
}

func (d *Driver) dialEvents(ctx context.Context, id string) (*websocket.Conn, error) {
	p, err := sessionPath(id, "events")
	if err != nil {
		return nil, err
	}
	target, err := d.http.ResolveURL(p, "")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, rsp, err := d.dialer.DialContext(ctx, u.String(), d.http.AuthHeader())
	if err != nil {
		if rsp != nil {
			return nil, fmt.Errorf("failed to open event stream: %s: %w", rsp.Status, err)
		}
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	return conn, nil
}

// sessionPath builds /sessions/{id}/{parts...} with every segment path escaped.
// Empty and dot segments are rejected so an id can never leave its session.
func sessionPath(id string, parts ...string) (string, error) {
	segments := append([]string{"sessions", id}, parts...)
	for i, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, seg)
		}
		segments[i] = url.PathEscape(seg)
	}
	return "/" + strings.Join(segments, "/"), nil
}

// parseArray checks that body is a JSON array.
func parseArray(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: not JSON", ErrInvalidResponse)
	}
	r := gjson.ParseBytes(body)
	if !r.IsArray() {
		return gjson.Result{}, fmt.Errorf("%w: expected an array", ErrInvalidResponse)
	}
	return r, nil
}

func rawElements(r gjson.Result) []json.RawMessage {
	var out []json.RawMessage
	r.ForEach(func(_, value gjson.Result) bool {
		out = append(out, json.RawMessage(value.Raw))
		return true
	})
	return out
}
