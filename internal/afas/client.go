// Package afas is a small client for the AFAS Profit REST API: it reads
// GetConnector rows and downloads attachments through the FileConnector.
package afas

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docconnector/internal/logging"
	"github.com/fruitsalade/docconnector/internal/metrics"
)

// ErrStatus is wrapped by errors for non-200 AFAS responses.
var ErrStatus = errors.New("unexpected AFAS status")

// Row is one GetConnector row. Values keep their JSON form; use Value to
// compare them as strings.
type Row map[string]json.RawMessage

// Value returns the field as a string. Numbers keep their literal form,
// null and missing fields are "".
func (r Row) Value(key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// Attachment is the FileConnector response body.
type Attachment struct {
	FileName string `json:"filename"`
	MimeType string `json:"mimetype"`
	FileData string `json:"filedata"`
}

// Config holds client settings.
type Config struct {
	EnvironmentID string
	Token         string

	// BaseURL overrides https://{EnvironmentID}.rest.afas.online.
	BaseURL string
	Timeout time.Duration
}

// Client calls one AFAS environment.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

// New creates a client for the configured environment.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://" + cfg.EnvironmentID + ".rest.afas.online"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/") + "/ProfitRestServices",
		authHeader: EncodeToken(cfg.Token),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// EncodeToken returns the Authorization header value for an AFAS token.
func EncodeToken(token string) string {
	return "AfasToken " + base64.StdEncoding.EncodeToString([]byte(token))
}

// ConnectorURL returns the URL reading every row of a GetConnector.
// skip=-1&take=-1 lifts the default 100-row page.
func (c *Client) ConnectorURL(connector string) string {
	return c.baseURL + "/connectors/" + url.PathEscape(connector) + "?skip=-1&take=-1"
}

// FileURL returns the FileConnector URL for an attachment. Commas in the
// file name are not accepted by AFAS, even when escaped.
func (c *Client) FileURL(fileID, fileName string) string {
	return c.baseURL + "/fileconnector/" + url.PathEscape(fileID) + "/" + url.PathEscape(fileName)
}

// Rows reads all rows of a GetConnector.
func (c *Client) Rows(ctx context.Context, connector string) ([]Row, error) {
	var body struct {
		Rows []Row `json:"rows"`
	}
	if err := c.getJSON(ctx, "connector", c.ConnectorURL(connector), &body); err != nil {
		return nil, fmt.Errorf("read connector %s: %w", connector, err)
	}
	return body.Rows, nil
}

// Download fetches an attachment.
func (c *Client) Download(ctx context.Context, fileID, fileName string) (*Attachment, error) {
	var att Attachment
	if err := c.getJSON(ctx, "fileconnector", c.FileURL(fileID, fileName), &att); err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	return &att, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAFASRequest(endpoint, time.Since(start), false)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordAFASRequest(endpoint, time.Since(start), false)
		logging.Warn("AFAS request failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordAFASRequest(endpoint, time.Since(start), false)
		return fmt.Errorf("decode response: %w", err)
	}

	metrics.RecordAFASRequest(endpoint, time.Since(start), true)
	return nil
}

// FilterEq returns the rows whose key equals value.
func FilterEq(rows []Row, key, value string) []Row {
	var out []Row
	for _, r := range rows {
		if r.Value(key) == value {
			out = append(out, r)
		}
	}
	return out
}

// FilterIn returns the rows whose key is one of values.
func FilterIn(rows []Row, key string, values []string) []Row {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	var out []Row
	for _, r := range rows {
		if _, ok := set[r.Value(key)]; ok {
			out = append(out, r)
		}
	}
	return out
}
