// Package completion talks to hosted language models for the three narrow
// questions the booking flow asks: is this medical, which specialty fits, and
// how to open the reply with some empathy.
package completion

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotConfigured is returned when no model client was wired.
var ErrNotConfigured = errors.New("completion: no model configured")

// Message is one turn of a prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      Usage
	StopReason string
}

// LLMClient is a single-turn completion backend.
type LLMClient interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// LLMClientFunc adapts a function to LLMClient.
type LLMClientFunc func(ctx context.Context, req Request) (Response, error)

func (f LLMClientFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
