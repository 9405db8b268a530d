package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ikemenltd/gasgen/internal/common"
	"github.com/ikemenltd/gasgen/internal/interfaces"
	"github.com/ikemenltd/gasgen/internal/models"
)

// ErrMalformedRequest marks a generation failure the backend rejected as
// a bad request. Retrying the same input cannot succeed.
var ErrMalformedRequest = errors.New("generation request rejected as malformed")

// categoryPrompts maps generation categories to system prompt framing.
var categoryPrompts = map[string]string{
	models.CategorySpreadsheet: "You write Google Apps Script that manipulates spreadsheets. Return complete, runnable code in a single fenced code block.",
	models.CategoryGmail:       "You write Google Apps Script that automates Gmail. Return complete, runnable code in a single fenced code block.",
	models.CategoryCalendar:    "You write Google Apps Script that manages calendars. Return complete, runnable code in a single fenced code block.",
	models.CategoryAPI:         "You write Google Apps Script that integrates external APIs via UrlFetchApp. Return complete, runnable code in a single fenced code block.",
	models.CategoryGeneric:     "You write Google Apps Script. Return complete, runnable code in a single fenced code block.",
}

// ClaudeService implements the Generator interface using the Anthropic
// Claude API.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// NewClaudeService creates a new Claude generation service
func NewClaudeService(claudeConfig *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if claudeConfig.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set via ANTHROPIC_API_KEY, GASGEN_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(claudeConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", claudeConfig.Timeout, err)
	}

	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(claudeConfig.APIKey),
	)

	service := &ClaudeService{
		config:    claudeConfig,
		logger:    logger,
		client:    client,
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude generation service initialized")

	return service, nil
}

// Generate produces a code artifact for the assembled conversation
// context. The call runs under the configured timeout; 4xx rejections
// other than rate limiting come back wrapped in ErrMalformedRequest.
func (s *ClaudeService) Generate(ctx context.Context, convCtx *models.ConversationContext) (string, error) {
	if convCtx == nil || strings.TrimSpace(convCtx.Requirements) == "" {
		return "", fmt.Errorf("%w: empty requirements", ErrMalformedRequest)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Debug().
		Str("subject_id", convCtx.SubjectID).
		Str("category", convCtx.Category).
		Int("history_len", len(convCtx.Messages)).
		Msg("Starting Claude generation")

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages:  buildMessages(convCtx),
	}

	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}

	systemText, ok := categoryPrompts[convCtx.Category]
	if !ok {
		systemText = categoryPrompts[models.CategoryGeneric]
	}
	params.System = []anthropic.TextBlockParam{
		{Text: systemText},
	}

	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		classified := classifyAPIError(err)
		s.logger.Error().
			Err(classified).
			Str("subject_id", convCtx.SubjectID).
			Msg("Claude generation failed")
		return "", classified
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	s.logger.Debug().
		Str("subject_id", convCtx.SubjectID).
		Int("response_length", response.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Claude generation completed")

	return response.String(), nil
}

// HealthCheck verifies the Claude API is reachable and authenticated
// with a minimal ping probe.
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := s.client.Messages.New(probeCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("Claude health check failed: %w", err)
	}

	if len(resp.Content) == 0 {
		return fmt.Errorf("Claude probe returned empty response")
	}
	return nil
}

// buildMessages converts conversation history plus the current
// requirements into Claude message params, maintaining chronological
// order and ending on the user turn.
func buildMessages(convCtx *models.ConversationContext) []anthropic.MessageParam {
	claudeMessages := make([]anthropic.MessageParam, 0, len(convCtx.Messages)+1)
	for _, msg := range convCtx.Messages {
		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
		anthropic.NewTextBlock(convCtx.Requirements),
	))
	return claudeMessages
}

// classifyAPIError wraps non-retryable API rejections in
// ErrMalformedRequest. Timeouts, rate limiting, and server errors pass
// through unwrapped so the caller retries them.
func classifyAPIError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		code := apierr.StatusCode
		if code >= 400 && code < 500 && code != 408 && code != 429 {
			return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
	}
	return fmt.Errorf("Claude API call failed: %w", err)
}

var _ interfaces.Generator = (*ClaudeService)(nil)
