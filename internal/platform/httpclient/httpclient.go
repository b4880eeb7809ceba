package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"proctor/pkg/platform/sentinel"
)

// Client is the opaque bearer-token REST surface the proctoring core rides
// on. Token lifecycle and 401 handling belong to the platform's auth layer;
// this wrapper only attaches the header and shapes errors.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New constructs a Client for the given API base URL. The underlying
// http.Client is injectable for tests; pass nil for the default.
func New(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: baseURL, token: token, http: hc}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends the request with the bearer header attached. The caller owns the
// response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, sentinel.ErrUnavailable)
	}
	return resp, nil
}

// GetJSON issues GET baseURL+path and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PostJSON issues POST baseURL+path with a JSON body. A nil body sends an
// empty request (used by fire-and-forget notifications).
func (c *Client) PostJSON(ctx context.Context, path string, body any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return checkStatus(resp)
}

// PostMultipart issues POST baseURL+path with a prepared multipart payload.
func (c *Client) PostMultipart(ctx context.Context, path, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", resp.Request.URL.Path, sentinel.ErrNotFound)
	default:
		return fmt.Errorf("%s returned %d: %w", resp.Request.URL.Path, resp.StatusCode, sentinel.ErrUnavailable)
	}
}
