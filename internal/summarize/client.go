package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/swiftreader/swiftreader/internal/config"
	"github.com/swiftreader/swiftreader/internal/metrics"
)

// UpstreamErrorKind classifies upstream failures for HTTP mapping.
type UpstreamErrorKind string

const (
	// KindUnreachable covers transport errors and timeouts.
	KindUnreachable UpstreamErrorKind = "unreachable"
	// KindBusy is an upstream 429. Retryable, never charged.
	KindBusy UpstreamErrorKind = "busy"
	// KindFailed is any other non-2xx upstream status.
	KindFailed UpstreamErrorKind = "failed"
)

// UpstreamError is a failed call to the summarization API.
type UpstreamError struct {
	Kind    UpstreamErrorKind
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

const systemPrompt = `You summarize sections of academic and technical texts.
Respond with a single JSON object and nothing else, shaped exactly as:
{"overview": "...", "keyPoints": ["...", "..."], "importance": "..."}
overview is 2-3 sentences, keyPoints lists 3-5 concrete takeaways, and
importance is one sentence on why the section matters in context.`

// Client calls the Anthropic Messages API for single-turn summarization.
type Client struct {
	api       anthropic.Client
	model     string
	maxTokens int
}

func NewClient(cfg config.AnthropicConfig) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// Retrying lives in the caller's hands: a busy upstream must surface
		// immediately so the request is denied without charging the account.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		api:       anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Reply is one upstream completion with its token accounting. Degraded is set
// when the model's reply could not be parsed as the expected JSON shape and
// the raw text was wrapped instead.
type Reply struct {
	Summary      *Summary
	Model        string
	InputTokens  int
	OutputTokens int
	Degraded     bool
}

// Summarize runs one single-turn completion over the already-sanitized
// content. Upstream failures come back as *UpstreamError; a malformed model
// reply is not an error, it degrades to a raw-text overview.
func (c *Client) Summarize(ctx context.Context, sectionTitle, content string) (*Reply, error) {
	prompt := content
	if sectionTitle != "" {
		prompt = fmt.Sprintf("Section: %s\n\n%s", sectionTitle, content)
	}

	start := time.Now()
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		upErr := classifyUpstreamError(err)
		metrics.UpstreamErrorsTotal.WithLabelValues(string(upErr.Kind)).Inc()
		return nil, upErr
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	summary, degraded := parseSummary(text)
	return &Reply{
		Summary:      summary,
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		Degraded:     degraded,
	}, nil
}

func classifyUpstreamError(err error) *UpstreamError {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		return &UpstreamError{Kind: KindUnreachable, Message: err.Error()}
	}
	kind := KindFailed
	if apierr.StatusCode == http.StatusTooManyRequests {
		kind = KindBusy
	}
	return &UpstreamError{Kind: kind, Status: apierr.StatusCode, Message: upstreamMessage(apierr)}
}

func upstreamMessage(apierr *anthropic.Error) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(apierr.RawJSON()), &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return "upstream request failed"
}

// parseSummary recovers the structured summary from the model's reply. Models
// wrap JSON in code fences or pad it with prose often enough that the parse
// has to be forgiving: strip fences, slice the first '{' to the last '}',
// coerce keyPoints. If nothing parses the raw text becomes the overview.
func parseSummary(text string) (*Summary, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if open := strings.Index(cleaned, "{"); open >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > open {
			cleaned = cleaned[open : end+1]
		}
	}

	var partial struct {
		Overview   string          `json:"overview"`
		KeyPoints  json.RawMessage `json:"keyPoints"`
		Importance string          `json:"importance"`
	}
	if err := json.Unmarshal([]byte(cleaned), &partial); err != nil || partial.Overview == "" {
		return &Summary{Overview: strings.TrimSpace(text), KeyPoints: []string{}}, true
	}

	return &Summary{
		Overview:   partial.Overview,
		KeyPoints:  coerceKeyPoints(partial.KeyPoints),
		Importance: partial.Importance,
	}, false
}

// coerceKeyPoints accepts a string slice, a bare string, or nothing.
func coerceKeyPoints(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return []string{}
}
