// Package notify sends conflict reports, analytics events, status updates and
// remote logs over HTTP.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/devicelab-dev/rerouter/pkg/logger"
)

// DefaultGA4Endpoint is the GA4 Measurement Protocol collection URL.
const DefaultGA4Endpoint = "https://www.google-analytics.com/mp/collect"

// ErrNotConfigured is returned when the target URL for a call is empty.
var ErrNotConfigured = errors.New("notify: endpoint not configured")

// Config holds the endpoints and credentials.
type Config struct {
	SlackURL  string
	StatusURL string
	StatusKey string
	LogURL    string

	GA4MeasurementID string
	GA4APISecret     string
	GA4Endpoint      string
	// ClientID identifies this installation to GA4. A random one is generated
	// when empty.
	ClientID string

	// StatusAttempts and StatusRetryInterval bound UpdateStatus retries.
	StatusAttempts      int
	StatusRetryInterval time.Duration
	Timeout             time.Duration
}

// Client posts JSON payloads to the configured services.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a client, filling unset retry and timeout values.
func New(cfg Config) *Client {
	if cfg.GA4Endpoint == "" {
		cfg.GA4Endpoint = DefaultGA4Endpoint
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.StatusAttempts <= 0 {
		cfg.StatusAttempts = 3
	}
	if cfg.StatusRetryInterval == 0 {
		cfg.StatusRetryInterval = 3 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ClientID returns the GA4 client id in use.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

// SendSlack posts a titled message to the Slack webhook.
func (c *Client) SendSlack(title, message string) error {
	if c.cfg.SlackURL == "" {
		return ErrNotConfigured
	}
	body := map[string]interface{}{
		"blocks": []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*" + title + "*"}},
			{Type: "divider"},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: message}},
		},
	}
	_, err := c.post(c.cfg.SlackURL, body)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	return nil
}

type ga4Event struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params"`
}

// SendEvent records a GA4 event with a single value parameter.
func (c *Client) SendEvent(name, value string) error {
	if c.cfg.GA4MeasurementID == "" || c.cfg.GA4APISecret == "" {
		return ErrNotConfigured
	}
	q := url.Values{}
	q.Set("measurement_id", c.cfg.GA4MeasurementID)
	q.Set("api_secret", c.cfg.GA4APISecret)
	target := c.cfg.GA4Endpoint + "?" + q.Encode()

	body := map[string]interface{}{
		"client_id": c.cfg.ClientID,
		"events": []ga4Event{
			{Name: name, Params: map[string]interface{}{"value": value}},
		},
	}
	if _, err := c.post(target, body); err != nil {
		return fmt.Errorf("failed to send event %s: %w", name, err)
	}
	return nil
}

type statusRequest struct {
	DeviceID  string `json:"deviceId"`
	LicenseID string `json:"licenseId"`
	Status    string `json:"status"`
	Key       string `json:"key"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// UpdateStatus reports status for the device, retrying failed attempts.
func (c *Client) UpdateStatus(deviceID, licenseID, status string) error {
	if c.cfg.StatusURL == "" {
		return ErrNotConfigured
	}
	req := statusRequest{DeviceID: deviceID, LicenseID: licenseID, Status: status, Key: c.cfg.StatusKey}

	attempt := 0
	op := func() error {
		attempt++
		data, err := c.post(c.cfg.StatusURL, req)
		if err != nil {
			return err
		}
		var resp statusResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse status response: %w (body: %s)", err, string(data))
		}
		logger.Debug("status update result success=%t error=%q", resp.Success, resp.Error)
		if !resp.Success {
			return fmt.Errorf("status update rejected: %s", resp.Error)
		}
		return nil
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.StatusRetryInterval), uint64(c.cfg.StatusAttempts-1))
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("failed to update status after %d attempts: %w", attempt, err)
	}
	return nil
}

type logRequest struct {
	Channel string `json:"channel"`
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// SendLog posts a log entry to the remote log service.
func (c *Client) SendLog(channel, level, title, message string) error {
	if c.cfg.LogURL == "" {
		return ErrNotConfigured
	}
	if _, err := c.post(c.cfg.LogURL, logRequest{Channel: channel, Level: level, Title: title, Message: message}); err != nil {
		return fmt.Errorf("failed to send log: %w", err)
	}
	return nil
}

func (c *Client) post(target string, body interface{}) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Post(target, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(out))
	}
	return out, nil
}
