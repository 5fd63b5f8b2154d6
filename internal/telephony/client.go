// Package telephony talks to the provider's REST control plane: placing
// outbound calls and rendering the voice instructions that attach the
// media stream.
package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sania040/aiagent/internal/config"
	"github.com/sania040/aiagent/internal/logging"
)

// Client places calls through the Twilio REST API.
type Client struct {
	cfg    config.TwilioConfig
	client *http.Client
}

func NewClient(cfg config.TwilioConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether outbound calling credentials are present.
// The websocket side works without them (inbound calls, test harnesses).
func (c *Client) Configured() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != "" && c.cfg.FromNumber != ""
}

// PlaceCall dials toNumber and points the call at voiceURL for its
// instructions. Returns the provider's call SID.
func (c *Client) PlaceCall(ctx context.Context, toNumber, voiceURL, statusURL string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("telephony: credentials not configured")
	}
	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Url", voiceURL)
	if statusURL != "" {
		form.Set("StatusCallback", statusURL)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", strings.TrimRight(c.cfg.APIBaseURL, "/"), c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("telephony: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("telephony: place call: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("telephony: place call: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("telephony: parse response: %w", err)
	}
	logging.Infow("telephony: call placed", "call.sid", parsed.SID, "to", toNumber, "status", parsed.Status)
	return parsed.SID, nil
}
