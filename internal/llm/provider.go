package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Provider is the core abstraction for LLM interaction.
// Tutoring turns send a free-text conversation and read back prose; profile
// updates attach a Schema and read back validated JSON.
type Provider interface {
	// Generate sends a prompt to the LLM and returns its completion.
	// When req.Schema is set the provider uses its native structured output
	// mechanism and Content is validated JSON. Otherwise Content holds the
	// raw completion text.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the LLM.
type Request struct {
	// System is the system prompt. Carries the tutoring template, the
	// current objective and the learner profile narrative.
	System string

	// Messages is the conversation window, oldest first. The last message
	// is normally the learner's new input.
	Messages []Message

	// Schema is the JSON Schema the response must conform to.
	// Nil for free-text tutoring turns.
	Schema *Schema

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the LLM.
type Schema struct {
	// Name identifies this schema (used as the tool/schema name by
	// providers and as the compiled-schema cache key). Kebab-case.
	Name string

	// Description is a human-readable description sent to the LLM.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the LLM's output.
type Response struct {
	// Content is the generated output: validated JSON when a Schema was
	// requested, otherwise the completion text as-is.
	Content json.RawMessage

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason indicates why generation stopped: one of StopEnd,
	// StopMaxTokens or StopFiltered.
	StopReason string
}

// Text returns the completion as a trimmed string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(string(r.Content))
}

// Truncated reports whether generation stopped at the token limit.
func (r *Response) Truncated() bool {
	return r != nil && r.StopReason == StopMaxTokens
}

// Normalized stop reasons.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
	StopFiltered  = "filtered"
)

// completion is what a provider pulled out of its SDK reply. finish turns
// it into a Response once the checks shared by every provider pass.
type completion struct {
	text  string
	stop  string
	usage Usage
	model string
}

// finish validates c against req. A structured reply must be complete and
// match its schema. A free-text reply may be truncated or empty (the
// session substitutes a fallback), but a reply the provider withheld
// entirely is reported as invalid so the turn can be retried.
func (c completion) finish(req Request) (*Response, error) {
	content := json.RawMessage(c.text)

	if c.stop == StopFiltered && strings.TrimSpace(c.text) == "" {
		return nil, &ErrInvalidResponse{Err: errors.New("reply withheld by the provider's content filter")}
	}
	if req.Schema != nil {
		if c.stop == StopMaxTokens {
			return nil, &ErrMaxTokensExceeded{Content: content}
		}
		if err := validateResponse(req.Schema, content); err != nil {
			return nil, err
		}
	}

	if c.usage.TotalTokens == 0 {
		c.usage.TotalTokens = c.usage.InputTokens + c.usage.OutputTokens
	}
	return &Response{
		Content:    content,
		Usage:      c.usage,
		Model:      c.model,
		StopReason: c.stop,
	}, nil
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
