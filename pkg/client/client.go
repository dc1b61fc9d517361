package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// Client wraps the Burrow REST API for CLI usage against a running
// server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for a server address such as
// "http://localhost:8440".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError mirrors the server's error envelope.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func storeQuery(store string) url.Values {
	q := url.Values{}
	if store != "" {
		q.Set("store", store)
	}
	return q
}

// ListStores returns every store's metadata.
func (c *Client) ListStores() ([]*types.StoreMeta, error) {
	var out []*types.StoreMeta
	err := c.do(http.MethodGet, "/forks", nil, nil, &out)
	return out, err
}

// Stats summarizes one store.
func (c *Client) Stats(store string) (*types.StoreStats, error) {
	var out types.StoreStats
	err := c.do(http.MethodGet, "/store/stats", storeQuery(store), nil, &out)
	return &out, err
}

// Snapshots lists a store's snapshot catalog.
func (c *Client) Snapshots(store string) ([]*types.Snapshot, error) {
	var out []*types.Snapshot
	err := c.do(http.MethodGet, "/snapshots", storeQuery(store), nil, &out)
	return out, err
}

// Fork creates a fork of source at its current history.
func (c *Client) Fork(source, name, note string) (*types.StoreMeta, error) {
	var out types.StoreMeta
	err := c.do(http.MethodPost, "/forks", nil, map[string]string{
		"source": source, "name": name, "note": note,
	}, &out)
	return &out, err
}

// Verify runs integrity verification on a store.
func (c *Client) Verify(store string) (*types.IntegrityReport, error) {
	var out types.IntegrityReport
	err := c.do(http.MethodPost, "/store/verify", storeQuery(store), nil, &out)
	return &out, err
}

// AddMemory creates a memory in a store.
func (c *Client) AddMemory(store, category, typ, content string, tags []string) (*types.Memory, error) {
	var out types.Memory
	err := c.do(http.MethodPost, "/memories", storeQuery(store), map[string]interface{}{
		"category": category, "type": typ, "content": content, "tags": tags,
	}, &out)
	return &out, err
}

// Search runs a search in a store.
func (c *Client) Search(store, query string, mode types.SearchMode, limit int) ([]*types.SearchResult, error) {
	var out []*types.SearchResult
	err := c.do(http.MethodPost, "/memories/search", storeQuery(store), map[string]interface{}{
		"query": query, "mode": mode, "limit": limit,
	}, &out)
	return out, err
}
