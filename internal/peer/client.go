// Package peer fetches key states, event logs and witness addresses from
// another witness over its HTTP API.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/registry"
)

// MaxResponseBytes bounds how much of a peer's answer is read.
const MaxResponseBytes = 4 << 20

// ErrNotFound is returned when the peer answers 404.
var ErrNotFound = errors.New("peer: not found")

// StatusError is returned for any other non-200 answer.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("peer: unexpected status %d: %s", e.Status, e.Body)
}

// Client issues reads against other witnesses. Addresses are host:port as
// announced in the directory.
type Client struct {
	http   *http.Client
	scheme string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient returns a client speaking plain HTTP. Callers bound each call
// with the context they pass.
func NewClient(opts ...Option) *Client {
	c := &Client{http: &http.Client{}, scheme: "http"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyState fetches the key state of id from addr.
func (c *Client) KeyState(ctx context.Context, addr string, id kel.Identifier) (kel.KeyState, error) {
	body, err := c.get(ctx, addr, "key_states", string(id))
	if err != nil {
		return kel.KeyState{}, err
	}
	var st kel.KeyState
	if err := json.Unmarshal(body, &st); err != nil {
		return kel.KeyState{}, fmt.Errorf("peer: decode key state: %w", err)
	}
	return st, nil
}

// KeyLog fetches and decodes the event log of id from addr.
func (c *Client) KeyLog(ctx context.Context, addr string, id kel.Identifier) ([]kel.SignedEvent, error) {
	body, err := c.get(ctx, addr, "key_logs", string(id))
	if err != nil {
		return nil, err
	}
	events, err := kel.ParseStream(body)
	if err != nil {
		return nil, fmt.Errorf("peer: decode key log: %w", err)
	}
	return events, nil
}

// WitnessAddress fetches the address record of wid from addr.
func (c *Client) WitnessAddress(ctx context.Context, addr, wid string) (registry.Record, error) {
	body, err := c.get(ctx, addr, "witness_ips", wid)
	if err != nil {
		return registry.Record{}, err
	}
	var rec registry.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return registry.Record{}, fmt.Errorf("peer: decode witness address: %w", err)
	}
	return rec, nil
}

func (c *Client) get(ctx context.Context, addr, collection, key string) ([]byte, error) {
	u := url.URL{
		Scheme:  c.scheme,
		Host:    addr,
		Path:    "/" + collection + "/" + key,
		RawPath: "/" + collection + "/" + url.PathEscape(key),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("peer: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("peer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("peer: read body: %w", err)
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("peer: response exceeds %d bytes", MaxResponseBytes)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
}
