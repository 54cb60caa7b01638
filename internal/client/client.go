package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wellness-chat/internal/models"
)

// Client talks to the chat service over REST and websocket subscriptions.
// It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	dialer     *websocket.Dialer
	maxElapsed time.Duration
	log        *zap.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryMaxElapsed bounds retries of idempotent requests and subscription dials.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

func New(baseURL string, logger *zap.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}
	c := &Client{
		baseURL:    u,
		http:       &http.Client{Transport: tr},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		maxElapsed: 10 * time.Second,
		log:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type SignInResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// SignIn exchanges an identity provider token for a session and keeps the
// session token for later calls.
func (c *Client) SignIn(ctx context.Context, idToken string) (SignInResult, error) {
	var out SignInResult
	if err := c.do(ctx, http.MethodPost, "/auth/signin", map[string]string{"id_token": idToken}, &out); err != nil {
		return SignInResult{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/signout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user)
	return user, err
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "/users", nil, &out)
	return out.Users, err
}

func (c *Client) ListGroups(ctx context.Context, query string) ([]models.Group, error) {
	path := "/groups"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out struct {
		Groups []models.Group `json:"groups"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Groups, err
}

// CreateGroup validates the name locally before calling the service.
func (c *Client) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	name, err := models.ValidateGroupName(name)
	if err != nil {
		return models.Group{}, err
	}
	var group models.Group
	err = c.do(ctx, http.MethodPost, "/groups", map[string]string{"name": name}, &group)
	return group, err
}

func (c *Client) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID), nil, &group)
	return group, err
}

func (c *Client) JoinGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/join", nil, nil)
}

func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/leave", nil, nil)
}

func (c *Client) StartTyping(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/typing", nil, nil)
}

func (c *Client) StopTyping(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodDelete, "/groups/"+url.PathEscape(groupID)+"/typing", nil, nil)
}

func (c *Client) ListMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/messages", nil, &out)
	return out.Messages, err
}

// SendMessage validates locally, so an empty message never reaches the network.
func (c *Client) SendMessage(ctx context.Context, groupID, text, attachmentURL string) (models.Message, error) {
	text, attachmentURL, err := models.ValidateMessage(text, attachmentURL)
	if err != nil {
		return models.Message{}, err
	}
	body := map[string]string{"text": text}
	if attachmentURL != "" {
		body["attachment_url"] = attachmentURL
	}
	var msg models.Message
	err = c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/messages", body, &msg)
	return msg, err
}

func (c *Client) MarkRead(ctx context.Context, groupID, messageID string) error {
	path := "/groups/" + url.PathEscape(groupID) + "/messages/" + url.PathEscape(messageID) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// UploadAttachment streams r as the raw request body and returns the stored URL.
func (c *Client) UploadAttachment(ctx context.Context, groupID, name, contentType string, r io.Reader, size int64) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/attachments", r)
	if err != nil {
		return "", err
	}
	req.ContentLength = size
	req.Header.Set("X-Filename", name)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		URL string `json:"url"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, err
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends a JSON request. GET requests are retried with exponential backoff
// on transport errors and 5xx responses.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	operation := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		err = decodeResponse(resp, out)
		if resp.StatusCode >= 500 {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	if method != http.MethodGet {
		err := operation()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.maxElapsed
	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.log.Debug("retrying request", zap.String("method", method), zap.String("path", path), zap.Duration("wait", wait), zap.Error(err))
	})
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
