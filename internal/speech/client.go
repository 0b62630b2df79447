// Package speech talks to a Watson-compatible asynchronous recognition API.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"recscribe/internal/config"
)

// Job is the recognition job the service created.
type Job struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Client calls the recognitions API with basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	params   []string
	http     *http.Client
}

func NewClient(cfg config.SpeechConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = config.DefaultSpeechURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Client{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		params:   cfg.Params,
		http:     &http.Client{Timeout: 300 * time.Second},
	}
}

// RegisterCallback whitelists callbackURL with the service. Both 200 (already
// registered) and 201 (created) count as success.
func (c *Client) RegisterCallback(ctx context.Context, callbackURL string) error {
	endpoint := c.baseURL + "register_callback?callback_url=" + url.QueryEscape(callbackURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("register callback: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("register callback: %s", statusError(resp))
	}
	return nil
}

// CreateJob submits audio for asynchronous recognition. Results are posted
// to callbackURL when the job completes.
func (c *Client) CreateJob(ctx context.Context, callbackURL string, audio io.Reader, contentType string) (*Job, error) {
	query := "callback_url=" + url.QueryEscape(callbackURL)
	if len(c.params) > 0 {
		query += "&" + strings.Join(c.params, "&")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"recognitions?"+query, audio)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create job: %s", statusError(resp))
	}
	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	logrus.WithFields(logrus.Fields{"job_id": job.ID, "status": job.Status}).Info("recognition job created")
	return &job, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.http.Do(req)
}

func statusError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
