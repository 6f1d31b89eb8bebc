package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/server"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running spravka server.
type Client struct {
	client *resty.Client
}

// NewClient creates a client for the server at baseURL. Requests are not retried.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
}

func (c *Client) check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
		if e, ok := resp.Error().(*server.ErrorResponse); ok && e.Error != "" {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	return nil
}

// Query asks a question and returns the generated answer.
func (c *Client) Query(ctx context.Context, req *models.QueryRequest) (*models.Answer, error) {
	var out models.Answer
	resp, err := c.client.R().SetContext(ctx).
		SetBody(req).SetResult(&out).SetError(&server.ErrorResponse{}).
		Post("/api/v1/query")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs retrieval and assembly without generation.
func (c *Client) Search(ctx context.Context, req *models.QueryRequest) (*models.Retrieval, error) {
	var out models.Retrieval
	resp, err := c.client.R().SetContext(ctx).
		SetBody(req).SetResult(&out).SetError(&server.ErrorResponse{}).
		Post("/api/v1/search")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ingest asks the server to ingest a file or directory it can read.
func (c *Client) Ingest(ctx context.Context, req *server.IngestRequest) (*server.IngestResponse, error) {
	var out server.IngestResponse
	resp, err := c.client.R().SetContext(ctx).
		SetBody(req).SetResult(&out).SetError(&server.ErrorResponse{}).
		Post("/api/v1/instructions")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes an instruction.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.client.R().SetContext(ctx).
		SetError(&server.ErrorResponse{}).
		Delete("/api/v1/instructions/" + url.PathEscape(id))
	return c.check(resp, err)
}

// SetActive activates or deactivates an instruction.
func (c *Client) SetActive(ctx context.Context, id string, active bool) error {
	action := "deactivate"
	if active {
		action = "activate"
	}
	resp, err := c.client.R().SetContext(ctx).
		SetError(&server.ErrorResponse{}).
		Post("/api/v1/instructions/" + url.PathEscape(id) + "/" + action)
	return c.check(resp, err)
}

// Instructions lists catalog entries. A non-empty title runs a title search instead.
func (c *Client) Instructions(ctx context.Context, activeOnly bool, tag, title string) ([]*models.Instruction, error) {
	var out struct {
		Instructions []*models.Instruction `json:"instructions"`
	}
	req := c.client.R().SetContext(ctx).SetResult(&out).SetError(&server.ErrorResponse{})
	if activeOnly {
		req.SetQueryParam("active_only", strconv.FormatBool(activeOnly))
	}
	if tag != "" {
		req.SetQueryParam("tag", tag)
	}
	if title != "" {
		req.SetQueryParam("q", title)
	}
	resp, err := req.Get("/api/v1/instructions")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return out.Instructions, nil
}

// Tags lists known tags.
func (c *Client) Tags(ctx context.Context) ([]*models.Tag, error) {
	var out struct {
		Tags []*models.Tag `json:"tags"`
	}
	resp, err := c.client.R().SetContext(ctx).
		SetResult(&out).SetError(&server.ErrorResponse{}).
		Get("/api/v1/tags")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

// Status returns knowledge base statistics.
func (c *Client) Status(ctx context.Context) (*server.StatusResponse, error) {
	var out server.StatusResponse
	resp, err := c.client.R().SetContext(ctx).
		SetResult(&out).SetError(&server.ErrorResponse{}).
		Get("/api/v1/status")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// WatchDirectories lists directories the server watches.
func (c *Client) WatchDirectories(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	resp, err := c.client.R().SetContext(ctx).
		SetResult(&out).SetError(&server.ErrorResponse{}).
		Get("/api/v1/watch/directories")
	if err := c.check(resp, err); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

// AddWatchDirectory asks the server to watch path and ingest what is already there.
func (c *Client) AddWatchDirectory(ctx context.Context, path string) error {
	resp, err := c.client.R().SetContext(ctx).
		SetBody(map[string]any{"path": path, "sync": true}).
		SetError(&server.ErrorResponse{}).
		Post("/api/v1/watch/directories")
	return c.check(resp, err)
}

// RemoveWatchDirectory stops watching path.
func (c *Client) RemoveWatchDirectory(ctx context.Context, path string) error {
	resp, err := c.client.R().SetContext(ctx).
		SetQueryParam("path", path).
		SetError(&server.ErrorResponse{}).
		Delete("/api/v1/watch/directories")
	return c.check(resp, err)
}
