package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/resilience"
)

const (
	messagesURL      = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	maxTokens        = 1024
)

const systemPrompt = `You are a meeting assistant. You listen to meeting transcripts in real time and surface helpful context from the team's knowledge library.

Your role:
- Surface relevant past decisions, specs, and context when the discussion touches on them
- Flag potential conflicts with existing decisions
- Note important questions, ideas, or tasks that come up
- Be concise; meeting participants have limited attention

You have access to the library context below. Use it to inform your suggestions.

IMPORTANT: Only surface things that are genuinely helpful. If nothing stands out, respond with just "NONE".

When you have suggestions, format each one as:
CATEGORY: One-line summary
Detail explaining why this is relevant.
Source: file/path or decision ID

Categories: RELATED, CONTEXT, CONFLICT, QUESTION, IDEA, TASK, EDIT

Separate multiple suggestions with a blank line. Keep each suggestion to 2-3 lines max.

=== LIBRARY CONTEXT ===
%s`

const analysisPrompt = `Review the latest meeting transcript below. Surface any relevant context, conflicts, or suggestions based on the library context in your system prompt.

If nothing noteworthy, respond with just "NONE".

=== TRANSCRIPT ===
%s`

// messagesRequest is the Anthropic Messages API request payload.
type messagesRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system,omitempty"`
	Tools     []toolDefinition `json:"tools,omitempty"`
	Messages  []message        `json:"messages"`
}

// message content is either a plain string or a slice of content blocks
// (assistant tool_use turns and tool_result replies).
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
	Error      *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// toolResult is the reply to one tool_use block.
type toolResult struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ContextBuilder supplies knowledge-library context for an analysis prompt.
type ContextBuilder interface {
	BuildContext(transcript string) string
}

// Client calls the external reasoning service to analyze transcript windows
// and to answer wake-word questions.
type Client struct {
	cfg        *config.Config
	baseURL    string
	httpClient *http.Client
	library    ContextBuilder
	tools      LibraryTools
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

// NewClient creates a reasoning client. library may be nil when no knowledge
// store is configured; analysis then runs on the transcript alone. A library
// that also exposes the retrieval tools enables tool use for Answer.
func NewClient(cfg *config.Config, library ContextBuilder, logger zerolog.Logger) *Client {
	c := &Client{
		cfg:        cfg,
		baseURL:    messagesURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		library:    library,
		breaker:    resilience.NewCircuitBreaker("reasoning", 5, 30*time.Second),
		logger:     logger,
	}
	if tools, ok := library.(LibraryTools); ok {
		c.tools = tools
	}
	return c
}

// Analyze sends the transcript window to the reasoning service and returns
// parsed suggestions. priorSummaries (already-surfaced items) are included
// so the model avoids repeating itself.
func (c *Client) Analyze(ctx context.Context, transcriptText string, priorSummaries []string) ([]Suggestion, error) {
	libraryContext := ""
	if c.library != nil {
		libraryContext = c.library.BuildContext(transcriptText)
	}

	system := fmt.Sprintf(systemPrompt, libraryContext)
	userMsg := fmt.Sprintf(analysisPrompt, transcriptText)
	if len(priorSummaries) > 0 {
		userMsg += "\n\n=== ALREADY SURFACED ===\n"
		for _, s := range priorSummaries {
			userMsg += s + "\n"
		}
	}

	var text string
	call := func() error {
		var err error
		text, err = c.complete(ctx, system, userMsg)
		return err
	}

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:    c.cfg.RetryMaxAttempts,
		InitialBackoff: time.Duration(c.cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}

	err := c.breaker.Call(func() error {
		return resilience.Retry(ctx, call, retryCfg, resilience.IsRetryableNetworkError)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	return ParseSuggestions(text, time.Now()), nil
}

// complete performs one Messages API round trip and returns the response text.
func (c *Client) complete(ctx context.Context, system, userMsg string) (string, error) {
	parsed, err := c.send(ctx, messagesRequest{
		Model:     c.cfg.MonitorModel,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: userMsg}},
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug().
		Int("input_tokens", parsed.Usage.InputTokens).
		Int("output_tokens", parsed.Usage.OutputTokens).
		Msg("Analysis completed")

	return parsed.Content[0].Text, nil
}

// send performs one Messages API round trip.
func (c *Client) send(ctx context.Context, reqBody messagesRequest) (*messagesResponse, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.AnthropicAPIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("reasoning service unavailable: %s", msg)
		}
		return nil, fmt.Errorf("reasoning service rejected request: %s", msg)
	}

	if len(parsed.Content) == 0 {
		return nil, fmt.Errorf("empty response content")
	}

	return &parsed, nil
}
