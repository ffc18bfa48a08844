package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bark-labs/sitepush/internal/model"
)

// ErrRejected is returned when the backend answers 2xx with success=false.
var ErrRejected = errors.New("backend rejected request")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http status %d: %s", e.Op, e.Status, e.Body)
}

// Client is a thin wrapper over the construction backend REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client

	mu        sync.RWMutex
	authToken string
}

// New creates a backend API client. Every call is a single attempt bounded by timeout.
func New(rawURL string, timeout time.Duration) (*Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("base url must include scheme")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return &Client{
		baseURL: parsed,
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetAuthToken sets the session bearer token; empty clears it.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = strings.TrimSpace(token)
	c.mu.Unlock()
}

// AuthToken returns the current session bearer token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

type tokenKey struct{}

// WithAuthToken pins a bearer token to ctx. It takes precedence over the
// session token, so a call can outlive a logout that clears it.
func WithAuthToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

// Envelope models the backend's standard response.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// RegisterRequest is the POST /push-token body.
type RegisterRequest struct {
	UserID     string         `json:"userId"`
	UserType   model.Role     `json:"userType"`
	Token      string         `json:"token"`
	Platform   model.Platform `json:"platform"`
	DeviceID   string         `json:"deviceId"`
	DeviceName string         `json:"deviceName"`
	AppVersion string         `json:"appVersion"`
}

// RegisterData is returned by POST /push-token.
type RegisterData struct {
	TokenID string `json:"tokenId"`
	IsNew   bool   `json:"isNew"`
}

// SendRequest is the POST /notifications/send body.
type SendRequest struct {
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data"`
	Recipients []model.Recipient `json:"recipients"`
	Timestamp  time.Time         `json:"timestamp"`
}

// SendData is returned by POST /notifications/send.
type SendData struct {
	NotificationsSent   int `json:"notificationsSent"`
	NotificationsFailed int `json:"notificationsFailed"`
}

type recipientsResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Recipients []model.Recipient `json:"recipients"`
}

// Ping checks backend health.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/health", nil, nil, nil)
}

// RegisterPushToken upserts the device token for a user.
func (c *Client) RegisterPushToken(ctx context.Context, req RegisterRequest) (*RegisterData, error) {
	var payload Envelope[RegisterData]
	if err := c.do(ctx, "register push token", http.MethodPost, "/push-token", nil, req, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, fmt.Errorf("register push token: %w: %s", ErrRejected, payload.Message)
	}
	return &payload.Data, nil
}

// DeactivatePushTokens deactivates every token of the user.
func (c *Client) DeactivatePushTokens(ctx context.Context, userID string) error {
	values := url.Values{}
	values.Set("userId", userID)
	var payload Envelope[json.RawMessage]
	if err := c.do(ctx, "deactivate push tokens", http.MethodDelete, "/push-token", values, nil, &payload); err != nil {
		return err
	}
	if !payload.Success {
		return fmt.Errorf("deactivate push tokens: %w: %s", ErrRejected, payload.Message)
	}
	return nil
}

// Recipients lists notification candidates for a client and optional project.
func (c *Client) Recipients(ctx context.Context, clientID, projectID string) ([]model.Recipient, error) {
	values := url.Values{}
	values.Set("clientId", clientID)
	if projectID != "" {
		values.Set("projectId", projectID)
	}
	var payload recipientsResponse
	if err := c.do(ctx, "list recipients", http.MethodGet, "/notifications/recipients", values, nil, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, fmt.Errorf("list recipients: %w: %s", ErrRejected, payload.Message)
	}
	return payload.Recipients, nil
}

// SendNotification asks the backend to fan out a notification.
func (c *Client) SendNotification(ctx context.Context, req SendRequest) (*SendData, error) {
	var payload Envelope[SendData]
	if err := c.do(ctx, "send notification", http.MethodPost, "/notifications/send", nil, req, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return &payload.Data, fmt.Errorf("send notification: %w: %s", ErrRejected, payload.Message)
	}
	return &payload.Data, nil
}

func (c *Client) do(ctx context.Context, op, method, p string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}
	target := c.resolve(p)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.decorate(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func (c *Client) resolve(p string) string {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, p)
	return u.String()
}

func (c *Client) decorate(ctx context.Context, req *http.Request) {
	token, ok := ctx.Value(tokenKey{}).(string)
	if !ok {
		token = c.AuthToken()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// BaseURL returns the configured backend URL without trailing slash.
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.baseURL.String(), "/")
}
