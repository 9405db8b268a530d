// -----------------------------------------------------------------------
// LINE Messenger - Push-message delivery of generated responses
// -----------------------------------------------------------------------

package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ikemenltd/gasgen/internal/interfaces"
	"github.com/ikemenltd/gasgen/internal/models"
)

const (
	// DefaultEndpoint is the LINE push message endpoint.
	DefaultEndpoint = "https://api.line.me/v2/bot/message/push"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10

	// MaxTextLength is the hard per-message character ceiling imposed by
	// the transport. Frames from the chunker stay under this with margin;
	// the client rejects anything longer outright.
	MaxTextLength = 2000
)

// APIError is a non-2xx response from the push endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LINE API error (status %d): %s", e.StatusCode, e.Message)
}

// LineClient is a LINE push-message client.
type LineClient struct {
	endpoint     string
	channelToken string
	httpClient   *http.Client
	logger       arbor.ILogger
	limiter      *rate.Limiter
}

// ClientOption configures the LineClient.
type ClientOption func(*LineClient)

// WithEndpoint sets a custom push endpoint.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *LineClient) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *LineClient) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *LineClient) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *LineClient) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewLineClient creates a new LINE push-message client.
func NewLineClient(channelToken string, opts ...ClientOption) *LineClient {
	c := &LineClient{
		endpoint:     DefaultEndpoint,
		channelToken: channelToken,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []pushMessage `json:"messages"`
}

type pushMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send pushes one message frame to the recipient. Outbound calls are
// paced by the client rate limiter.
func (c *LineClient) Send(ctx context.Context, recipientID string, frame models.MessageFrame) error {
	if recipientID == "" {
		return fmt.Errorf("recipient ID is required")
	}
	if len(frame.Text) > MaxTextLength {
		return fmt.Errorf("frame %d/%d exceeds transport ceiling: %d > %d chars",
			frame.Index, frame.Total, len(frame.Text), MaxTextLength)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait interrupted: %w", err)
	}

	body, err := json.Marshal(pushRequest{
		To: recipientID,
		Messages: []pushMessage{
			{Type: "text", Text: frame.Text},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	if c.logger != nil {
		c.logger.Debug().
			Str("recipient", recipientID).
			Int("frame", frame.Index).
			Int("total", frame.Total).
			Int("length", len(frame.Text)).
			Msg("LINE push request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	return nil
}

var _ interfaces.Messenger = (*LineClient)(nil)
