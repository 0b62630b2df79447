// Package client is the desk-side counterpart of the API: it uploads
// recordings through presigned posts, plays transcript snippets and
// submits edited transcripts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"recscribe/internal/models"
)

const csrfHeader = "X-CSRFToken"

var ErrUnauthorized = errors.New("not logged in")

// Client talks to a recscribe server. Cookies from Login are kept in the
// HTTP client's jar, and the session token is also sent as a bearer header
// so servers that only hand out Secure cookies work over plain http.
type Client struct {
	baseURL string
	http    *http.Client

	mu        sync.Mutex
	csrfToken string
	authToken string
}

// New returns a client for baseURL. httpClient may be nil, in which case
// a client with a fresh cookie jar is used.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Jar: jar}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}, nil
}

// Login authenticates and remembers the session and CSRF tokens the server
// issued.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login: %w", responseError(resp.StatusCode, data))
	}
	c.mu.Lock()
	c.authToken = gjson.GetBytes(data, "auth_token").String()
	c.csrfToken = gjson.GetBytes(data, "csrf_token").String()
	c.mu.Unlock()
	return nil
}

// CSRFToken returns the token sent with state-changing requests.
func (c *Client) CSRFToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrfToken
}

func (c *Client) SetCSRFToken(token string) {
	c.mu.Lock()
	c.csrfToken = token
	c.mu.Unlock()
}

// authorize adds the session token to a request bound for the server. It
// must not be used for requests to the object store.
func (c *Client) authorize(req *http.Request) {
	c.mu.Lock()
	token := c.authToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Dates lists the date prefixes that hold recordings.
func (c *Client) Dates(ctx context.Context) ([]string, error) {
	var out struct {
		Prefixes []string `json:"prefixes"`
	}
	if err := c.getJSON(ctx, "/api/recordings", nil, &out); err != nil {
		return nil, err
	}
	return out.Prefixes, nil
}

// Recordings lists the recordings stored under prefix.
func (c *Client) Recordings(ctx context.Context, prefix string) ([]models.Recording, error) {
	var out struct {
		Recordings []models.Recording `json:"recordings"`
	}
	if err := c.getJSON(ctx, "/api/recordings", url.Values{"prefix": {prefix}}, &out); err != nil {
		return nil, err
	}
	return out.Recordings, nil
}

// Editor fetches the snippets and audio of one transcript.
func (c *Client) Editor(ctx context.Context, prefix, recording string) (*models.Editor, error) {
	var out models.Editor
	q := url.Values{"prefix": {prefix}, "recording": {recording}}
	if err := c.getJSON(ctx, "/edit", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: %w", path, responseError(resp.StatusCode, data))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func responseError(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if msg := gjson.GetBytes(body, "error").String(); msg != "" {
		return fmt.Errorf("status %d: %s", status, msg)
	}
	return fmt.Errorf("status %d", status)
}
