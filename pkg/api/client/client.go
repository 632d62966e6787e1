package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// StaticField is the multipart field carrying the static archive.
const StaticField = "static"

// Client provides typed access to the backendless API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8080"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents a failure envelope returned by the API.
type APIError struct {
	Status int
	Reason string
}

func (e APIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Reason)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Reason  string          `json:"reason"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) (int, error) {
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		reader = bytes.NewReader(b)
		contentType = "application/json"
	default:
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, reader, contentType, token, v)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType, token string, v any) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return resp.StatusCode, APIError{Status: resp.StatusCode}
		}
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return resp.StatusCode, APIError{Status: resp.StatusCode, Reason: env.Reason}
	}
	if v == nil || len(env.Data) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response data: %w", err)
	}
	return resp.StatusCode, nil
}

// SessionResponse captures the user and token payload emitted by the API.
type SessionResponse struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// User reflects API user payloads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// TokenPair includes access and refresh tokens.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, email, username, password string) (SessionResponse, error) {
	body := map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	}
	var resp SessionResponse
	if _, err := c.do(ctx, http.MethodPost, "/auth/signup", body, "", &resp); err != nil {
		return SessionResponse{}, err
	}
	return resp, nil
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (SessionResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp SessionResponse
	if _, err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		return SessionResponse{}, err
	}
	return resp, nil
}

// Project is a named group of deployments.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListProjects returns the caller's projects.
func (c *Client) ListProjects(ctx context.Context, token string) ([]Project, error) {
	var projects []Project
	if _, err := c.do(ctx, http.MethodGet, "/projects", nil, token, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject provisions a new project.
func (c *Client) CreateProject(ctx context.Context, token, name, description string) (Project, error) {
	body := map[string]string{"name": name, "description": description}
	var project Project
	if _, err := c.do(ctx, http.MethodPost, "/projects", body, token, &project); err != nil {
		return Project{}, err
	}
	return project, nil
}

// Deployment is a fingerprinted definition of a project.
type Deployment struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Version     string    `json:"version"`
	Hash        string    `json:"hash"`
	HasStatic   bool      `json:"has_static"`
	PublishedAt time.Time `json:"published_at"`
}

// ListDeployments returns the deployments of a project.
func (c *Client) ListDeployments(ctx context.Context, token, projectID string) ([]Deployment, error) {
	path := fmt.Sprintf("/projects/%s/deployments", url.PathEscape(projectID))
	var deployments []Deployment
	if _, err := c.do(ctx, http.MethodGet, path, nil, token, &deployments); err != nil {
		return nil, err
	}
	return deployments, nil
}

// CreateDeployment submits a JSON definition. created is false when an
// identical definition was already stored and its id was returned.
func (c *Client) CreateDeployment(ctx context.Context, token, projectID string, definition json.RawMessage) (id string, created bool, err error) {
	path := fmt.Sprintf("/projects/%s/deployments", url.PathEscape(projectID))
	var resp struct {
		ID string `json:"id"`
	}
	status, err := c.do(ctx, http.MethodPost, path, definition, token, &resp)
	if err != nil {
		return "", false, err
	}
	return resp.ID, status == http.StatusCreated, nil
}

// UploadResult reports how many archive entries were stored.
type UploadResult struct {
	Uploaded int      `json:"uploaded"`
	Rejected []string `json:"rejected"`
}

// UploadStatic sends a zip archive as the static assets of a deployment.
func (c *Client) UploadStatic(ctx context.Context, token, projectID, deploymentID string, archive io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="static.zip"`, StaticField))
	header.Set("Content-Type", "application/zip")
	part, err := mw.CreatePart(header)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, archive); err != nil {
		return UploadResult{}, fmt.Errorf("write archive: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("close form: %w", err)
	}

	path := fmt.Sprintf("/projects/%s/deployments/%s", url.PathEscape(projectID), url.PathEscape(deploymentID))
	var result UploadResult
	if _, err := c.send(ctx, http.MethodPut, path, &buf, mw.FormDataContentType(), token, &result); err != nil {
		return UploadResult{}, err
	}
	return result, nil
}

// DeleteDeployment tears down a deployment.
func (c *Client) DeleteDeployment(ctx context.Context, token, projectID, deploymentID string) error {
	path := fmt.Sprintf("/projects/%s/deployments/%s", url.PathEscape(projectID), url.PathEscape(deploymentID))
	_, err := c.do(ctx, http.MethodDelete, path, nil, token, nil)
	return err
}
