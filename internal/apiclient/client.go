// Package apiclient talks to the usergrid HTTP API from the grid side.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"usergrid/pkg/domain"
)

const (
	bulkUpsertPath = "/api/userUpdateAll"
	usersPath      = "/api/userApi"
	maxErrorBody   = 64 << 10
)

// StatusError is returned for any non-2xx response. Message carries the
// server's "error" text when the body had one.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client calls the user endpoints of one server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadAll fetches every stored user.
func (c *Client) LoadAll(ctx context.Context) ([]domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+usersPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	var users []domain.User
	if err := c.do(req, &users); err != nil {
		return nil, errors.Wrap(err, "load users")
	}
	return users, nil
}

// BulkUpsert sends users in one request. A nil error means the server
// committed every record; any error means nothing may be assumed written.
func (c *Client) BulkUpsert(ctx context.Context, users []domain.User) error {
	items := make([]domain.BatchItem, 0, len(users))
	for _, u := range users {
		items = append(items, domain.BatchItemFrom(u))
	}
	body, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode users")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+bulkUpsertPath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, nil); err != nil {
		return errors.Wrap(err, "bulk upsert")
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(data, &body) == nil {
		msg = body.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
