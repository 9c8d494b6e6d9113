package e2e

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"replkv/internal/client"
	"replkv/internal/model"
)

// APIError surfaces non-2xx responses from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

//nolint:errorlint
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

var ErrNotFound = errors.New("not found")

// Client talks to the HTTP gateway for point operations and directly to
// the server for range scans, which the gateway does not expose.
type Client struct {
	baseURL string
	addr    string
	http    *http.Client
}

func NewClient(sut *systemUnderTest, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: sut.GatewayURL, addr: sut.Addr, http: httpClient}
}

// Put creates or overwrites a key with the given value.
func (c *Client) Put(ctx context.Context, key, value string) error {
	_, err := c.do(ctx, http.MethodPost, key, value, http.StatusOK)
	return err
}

// Get retrieves a key; returns ErrNotFound on 404.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.do(ctx, http.MethodGet, key, "", http.StatusOK)
}

// Delete removes a key; returns ErrNotFound on 404.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.do(ctx, http.MethodDelete, key, "", http.StatusNoContent)
	return err
}

// Scan returns ordered key/value pairs in [start, end).
func (c *Client) Scan(ctx context.Context, start, end string) ([]model.KeyValue, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.Scan(start, end)
}

func (c *Client) dial(ctx context.Context) (*client.Conn, error) {
	return client.Dial(ctx, c.addr, 5*time.Second)
}

func (c *Client) do(ctx context.Context, method, key, body string, want int) (string, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(body))
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != want {
		return "", newAPIError(resp.StatusCode, data)
	}
	return string(data), nil
}

func newAPIError(status int, body []byte) error {
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	return &APIError{
		StatusCode: status,
		Body:       string(body),
	}
}
