// client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"scribe/internal/command"
	"scribe/internal/middleware"
	"scribe/internal/stats"
	"scribe/internal/workspace"

	"github.com/google/uuid"
)

// Client talks to a running scribe server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// CommandResponse is the decoded result of a command invocation.
type CommandResponse struct {
	Command   string `json:"command"`
	Status    string `json:"status"`
	Completed bool   `json:"completed"`
	File      string `json:"file,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"-"`
}

// Save asks the server to save contents for path.
func (c *Client) Save(ctx context.Context, path, contents string, offsetWordCount int) (*CommandResponse, error) {
	return c.Dispatch(ctx, command.SaveFileName, command.NewSaveRequest(path, contents, offsetWordCount))
}

// Dispatch invokes the named command with payload encoded as JSON.
func (c *Client) Dispatch(ctx context.Context, name string, payload any) (*CommandResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/commands/"+name, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unexpected(resp)
	}

	var result CommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	result.RequestID = resp.Header.Get(middleware.RequestIDHeader)

	return &result, nil
}

func (c *Client) ListFiles(ctx context.Context) ([]workspace.File, error) {
	var files []workspace.File
	if err := c.get(ctx, "/api/files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) Stats(ctx context.Context) (*stats.Summary, error) {
	var s stats.Summary
	if err := c.get(ctx, "/api/stats", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpected(resp)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpected(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.RequestIDHeader, uuid.New().String())
	return req, nil
}

func unexpected(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return fmt.Errorf("unexpected status: %s: %s", resp.Status, body.Message)
	}
	return fmt.Errorf("unexpected status: %s", resp.Status)
}
