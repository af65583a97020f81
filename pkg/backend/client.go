package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"stageflow/pkg/logx"
	"stageflow/pkg/model"
)

const maxErrorBody = 4096

// Client talks JSON to the case-management API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logx.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent on API calls. Upload transfers never carry it.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logx.NewLogger("backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListProjects implements ProjectLister.
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// FetchBundle implements ConfigSource.
func (c *Client) FetchBundle(ctx context.Context, projectID string) (model.Bundle, error) {
	var bundle model.Bundle
	if err := c.do(ctx, http.MethodGet, projectPath(projectID, "transition-config"), nil, &bundle); err != nil {
		return model.Bundle{}, err
	}
	bundle.FetchedAt = time.Now()
	return bundle, nil
}

// SubmitApproval implements ApprovalSubmitter.
func (c *Client) SubmitApproval(ctx context.Context, projectID string, sub model.ApprovalSubmission) error {
	return c.do(ctx, http.MethodPost, projectPath(projectID, "approvals"), sub, nil)
}

// CommitTransition implements TransitionCommitter.
func (c *Client) CommitTransition(ctx context.Context, projectID string, req model.TransitionRequest) (model.CommitResult, error) {
	var result model.CommitResult
	if err := c.do(ctx, http.MethodPost, projectPath(projectID, "transitions"), req, &result); err != nil {
		return model.CommitResult{}, err
	}
	return result, nil
}

// CreateQuery implements QueryCreator.
func (c *Client) CreateQuery(ctx context.Context, projectID string, item model.QueryItem) error {
	return c.do(ctx, http.MethodPost, projectPath(projectID, "queries"), item, nil)
}

// RequestUploadTarget implements Storage.
func (c *Client) RequestUploadTarget(ctx context.Context, projectID string, meta FileMeta) (UploadTarget, error) {
	var target UploadTarget
	if err := c.do(ctx, http.MethodPost, projectPath(projectID, "uploads"), meta, &target); err != nil {
		return UploadTarget{}, err
	}
	if target.UploadURL == "" {
		return UploadTarget{}, fmt.Errorf("upload target for %s has no URL", meta.FileName)
	}
	return target, nil
}

// Transfer implements Storage by PUTting the raw bytes to the one-time URL.
func (c *Client) Transfer(ctx context.Context, target UploadTarget, meta FileMeta, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	if meta.FileType != "" {
		req.Header.Set("Content-Type", meta.FileType)
	}
	if meta.FileSize > 0 {
		req.ContentLength = meta.FileSize
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload of %s failed: %w", meta.FileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readHTTPError(resp, http.MethodPut, target.ObjectPath)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SendNotification implements NotificationSender.
func (c *Client) SendNotification(ctx context.Context, projectID string, req model.NotificationRequest) (model.NotificationResult, error) {
	var result model.NotificationResult
	if err := c.do(ctx, http.MethodPost, projectPath(projectID, "notifications"), req, &result); err != nil {
		return model.NotificationResult{}, err
	}
	return result, nil
}

func projectPath(projectID, resource string) string {
	return "/projects/" + url.PathEscape(projectID) + "/" + resource
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("%s %s -> %d in %s (request %s)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond), requestID)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readHTTPError(resp, method, path)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func readHTTPError(resp *http.Response, method, path string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(data)),
	}
}
