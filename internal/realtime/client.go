// Package realtime mints ephemeral client secrets for the hosted realtime
// voice API. The WebRTC transport itself is negotiated by the client; this
// server only brokers short-lived credentials.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the hosted API base.
const DefaultBaseURL = "https://api.openai.com/v1"

// SessionConfig describes the realtime session to mint.
type SessionConfig struct {
	Model        string   `json:"model"`
	Voice        string   `json:"voice"`
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions"`
}

// ClientSecret is the ephemeral credential handed to the browser client.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// Client mints realtime sessions. The embeddings SDK does not cover this
// endpoint, so it is called directly.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New creates a realtime client. An empty baseURL selects the hosted API.
func New(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// CreateSession mints an ephemeral client secret for one voice session.
func (c *Client) CreateSession(ctx context.Context, cfg SessionConfig) (*ClientSecret, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal session config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create realtime session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("create realtime session: status %d: %s", resp.StatusCode, detail)
	}

	var payload struct {
		ClientSecret ClientSecret `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if payload.ClientSecret.Value == "" {
		return nil, fmt.Errorf("realtime session response missing client_secret")
	}
	return &payload.ClientSecret, nil
}
