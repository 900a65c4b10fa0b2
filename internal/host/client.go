// Package host implements the host capabilities a session consumes
// (backend function calls and resource data queries) over HTTP.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docconnector/internal/logging"
	"github.com/fruitsalade/docconnector/internal/protocol"
	"github.com/fruitsalade/docconnector/internal/resolver"
)

// ErrClosed is returned by a resource data client used after Close.
var ErrClosed = errors.New("resource data client closed")

// Config holds client configuration.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	ContextToken string
}

// Client talks to the functions server on behalf of a session.
type Client struct {
	baseURL    string
	httpClient *http.Client

	token string

	mu     sync.RWMutex
	online bool
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		online: true,
		token:  cfg.ContextToken,
	}
}

func (c *Client) applyAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// IsOnline reports whether the last request reached the server.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			logging.Info("functions server reachable again", zap.String("url", c.baseURL))
		} else {
			logging.Warn("functions server unreachable", zap.String("url", c.baseURL))
		}
	}
	c.online = online
}

// Ping checks that the functions server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setOnline(false)
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	c.setOnline(true)
	return nil
}

// Call invokes a backend function. payload may be nil.
func (c *Client) Call(ctx context.Context, operation string, payload any) (*protocol.CallResponse, error) {
	var body protocol.CallRequest
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", operation, err)
		}
		body.Payload = raw
	}

	var result protocol.CallResponse
	if err := c.postJSON(ctx, "/api/v1/functions/"+operation, body, &result); err != nil {
		return nil, fmt.Errorf("call %s: %w", operation, err)
	}
	return &result, nil
}

// NewResourceDataClient opens a scoped resource data client.
func (c *Client) NewResourceDataClient() resolver.ResourceDataClient {
	return &ResourceDataClient{client: c}
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return err
	}
	defer resp.Body.Close()
	c.setOnline(true)

	if resp.StatusCode != http.StatusOK {
		var errResp protocol.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// ResourceDataClient queries agent/asset data through the functions server.
// It must be closed after use; a closed client rejects further queries.
type ResourceDataClient struct {
	client *Client
	closed atomic.Bool
}

// Query runs the given resource queries.
func (r *ResourceDataClient) Query(ctx context.Context, queries []protocol.ResourceQuery) ([]protocol.ResourceRecord, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	var records []protocol.ResourceRecord
	err := r.client.postJSON(ctx, "/api/v1/resources/query", protocol.ResourceQueryRequest{Queries: queries}, &records)
	if err != nil {
		return nil, fmt.Errorf("resource query: %w", err)
	}
	return records, nil
}

// Close releases the client. Closing twice is a no-op.
func (r *ResourceDataClient) Close() error {
	r.closed.Store(true)
	return nil
}
