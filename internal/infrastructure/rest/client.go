package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/gray-sync-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-sync-core/internal/normalize"
)

// defaultTimeout bounds one snapshot request when the config omits it.
const defaultTimeout = 10 * time.Second

// maxResponseSize caps a snapshot response body (4MB). A device snapshot
// is a flat object of slot entries and never approaches this.
const maxResponseSize = 4 << 20

// Client pulls device snapshots from the REST backend. It implements the
// gateway's Snapshotter.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New creates a snapshot client from configuration.
func New(cfg config.RESTConfig) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("rest: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("rest: invalid base URL %q: %w", cfg.BaseURL, err)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		base:  base,
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

// PrimeParameters fetches the parameter snapshot for each device.
func (c *Client) PrimeParameters(ctx context.Context, deviceIDs []string) (map[string]normalize.Payload, error) {
	return c.fetchAll(ctx, deviceIDs, "parameters")
}

// PrimeActivity fetches the activity snapshot for each device.
func (c *Client) PrimeActivity(ctx context.Context, deviceIDs []string) (map[string]normalize.Payload, error) {
	return c.fetchAll(ctx, deviceIDs, "activity")
}

// fetchAll pulls one snapshot kind for every device. The result is
// all-or-nothing: a single failed device fails the whole prime, which the
// gateway retries as a unit.
func (c *Client) fetchAll(ctx context.Context, deviceIDs []string, kind string) (map[string]normalize.Payload, error) {
	out := make(map[string]normalize.Payload, len(deviceIDs))
	for _, id := range deviceIDs {
		p, err := c.fetch(ctx, id, kind)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", id, err)
		}
		out[id] = p
	}
	return out, nil
}

// fetch performs one snapshot request.
func (c *Client) fetch(ctx context.Context, deviceID, kind string) (normalize.Payload, error) {
	endpoint := fmt.Sprintf("%s/api/v1/devices/%s/%s", c.base, url.PathEscape(deviceID), kind)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only response

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for diagnostics, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256)) //nolint:errcheck // diagnostic only
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload normalize.Payload
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return payload, nil
}
