package driver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDriver talks to the resource-manager endpoint over JSON/HTTP.
type HTTPDriver struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDriver creates a driver against endpoint, e.g.
// "http://master:5050/api/framework".
func NewHTTPDriver(endpoint string) *HTTPDriver {
	return &HTTPDriver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *HTTPDriver) LaunchTask(task *TaskInfo) error {
	return d.post("/launch", task)
}

func (d *HTTPDriver) KillTask(taskID string) error {
	return d.post("/kill", map[string]string{"taskId": taskID})
}

func (d *HTTPDriver) post(path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := d.client.Post(d.endpoint+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("resource manager request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resource manager returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
