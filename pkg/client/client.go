package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ServerStatus is the client-side view of one managed server, decoded from
// the snapshot shape the API serves.
type ServerStatus struct {
	ID          string              `json:"id"`
	State       string              `json:"state"`
	Config      json.RawMessage     `json:"config"`
	Constraints map[string][]string `json:"constraints,omitempty"`
	Task        *TaskStatus         `json:"task,omitempty"`
	Failover    FailoverStatus      `json:"failover"`
}

// TaskStatus describes a server's current placement.
type TaskStatus struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// FailoverStatus carries the failure counters shown to operators.
type FailoverStatus struct {
	Failures int        `json:"failures"`
	MaxTries *int       `json:"maxTries,omitempty"`
	Last     *time.Time `json:"failureTime,omitempty"`
}

// Client talks to the zkfleet admin API.
type Client struct {
	base string
	http *http.Client
}

// New creates a client against the given base URL, e.g.
// "http://localhost:6666".
func New(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// AddServer registers a server; the request body mirrors the API's
// ServerRequest shape.
func (c *Client) AddServer(req any) (*ServerStatus, error) {
	return c.serverCall(http.MethodPost, "/api/servers", req)
}

// UpdateServer replaces a server's config and constraints.
func (c *Client) UpdateServer(id string, req any) (*ServerStatus, error) {
	return c.serverCall(http.MethodPut, "/api/servers/"+id, req)
}

// StartServer marks a server desired-to-run.
func (c *Client) StartServer(id string) (*ServerStatus, error) {
	return c.serverCall(http.MethodPost, "/api/servers/"+id+"/start", nil)
}

// StopServer takes a server out of scheduling.
func (c *Client) StopServer(id string) (*ServerStatus, error) {
	return c.serverCall(http.MethodPost, "/api/servers/"+id+"/stop", nil)
}

// RemoveServer deletes an inactive server.
func (c *Client) RemoveServer(id string) error {
	resp, err := c.do(http.MethodDelete, "/api/servers/"+id, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Status lists the fleet in registration order.
func (c *Client) Status() ([]*ServerStatus, error) {
	resp, err := c.do(http.MethodGet, "/api/servers", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var servers []*ServerStatus
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return servers, nil
}

func (c *Client) serverCall(method, path string, req any) (*ServerStatus, error) {
	resp, err := c.do(method, path, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var server ServerStatus
	if err := json.NewDecoder(resp.Body).Decode(&server); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &server, nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.base, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s", apiErr.Error)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}
