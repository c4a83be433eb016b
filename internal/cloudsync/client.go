package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pebble-sync/internal/common"
	"pebble-sync/internal/models"
)

// StatusError is a non-2xx response that does not map to a sentinel.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pebblesync %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("pebblesync status %d", e.Code)
}

// Client talks to the pebblesync server. The bearer token is passed per
// call because it lives in settings and may change between calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type errorBody struct {
	Message string `json:"message"`
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (c *Client) Push(ctx context.Context, token string, req models.PushRequest) (*models.PushResult, error) {
	var out models.PushResult
	if err := c.do(ctx, http.MethodPost, "/sync/push", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Fetch(ctx context.Context, token string) ([]models.Envelope, error) {
	var out struct {
		Items []models.Envelope `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/sync/fetch", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) History(ctx context.Context, token string, limit int, cursor string) (*models.HistoryPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/sync/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out models.HistoryPage
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateKey(ctx context.Context, adminToken, keyID, secret, name string) (*models.CreatedKey, error) {
	body := map[string]string{"keyId": keyID, "secret": secret, "name": name}
	var out models.CreatedKey
	if err := c.do(ctx, http.MethodPost, "/keys/create", adminToken, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListKeys(ctx context.Context, adminToken string) ([]models.APIKeyInfo, error) {
	var out struct {
		Keys []models.APIKeyInfo `json:"keys"`
	}
	if err := c.do(ctx, http.MethodGet, "/keys/list", adminToken, nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

func (c *Client) RevokeKey(ctx context.Context, adminToken, keyID string) error {
	return c.do(ctx, http.MethodPost, "/keys/revoke", adminToken, map[string]string{"keyId": keyID}, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body any, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token = strings.TrimSpace(token); token != "" {
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		req.Header.Set("Authorization", token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", common.ErrValidation, eb.Message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, eb.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, eb.Message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", common.ErrConflict, eb.Message)
	default:
		return &StatusError{Code: resp.StatusCode, Message: eb.Message}
	}
}
