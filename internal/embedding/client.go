package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"
)

// Client wraps the OpenAI client for embedding generation. It is constructed
// once at startup and shared read-only across sessions.
type Client struct {
	client *openai.Client
	apiKey string
}

// NewClient creates the OpenAI client. It reads OPENAI_API_KEY from the
// environment and returns an error if it is not set.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	// openai-go reads OPENAI_API_KEY from the environment itself.
	client := openai.NewClient()

	return &Client{client: &client, apiKey: apiKey}, nil
}

// APIKey returns the configured key for collaborators that talk to OpenAI
// endpoints the SDK does not cover (realtime session minting).
func (c *Client) APIKey() string {
	return c.apiKey
}
