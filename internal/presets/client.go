package presets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client reads a preset server's API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// BaseURL is the server address sound URLs are relative to.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) ListPresets(ctx context.Context) ([]Preset, error) {
	var out []Preset
	if err := c.getJSON(ctx, "/api/presets", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSounds(ctx context.Context, category string) (Listing, error) {
	var l Listing
	if err := c.getJSON(ctx, "/api/presets/"+url.PathEscape(category), &l); err != nil {
		return Listing{}, err
	}
	return l, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrapf(err, "request %s", path)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "get %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("get %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
