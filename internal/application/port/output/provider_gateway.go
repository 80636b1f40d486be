// Package output defines the ports the application layer consumes.
// Implementations live under internal/infrastructure.
package output

import (
	"context"
	"fmt"
)

// Message is one entry of accumulated conversation state.
type Message struct {
	Role    string `json:"role"` // system, user, assistant, tool
	Content string `json:"content"`
	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ActionDescriptor advertises one action the model may request.
type ActionDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Schema      string `json:"schema,omitempty"` // JSON schema of parameters
}

// ToolCallRequest is one structured action request from the model.
type ToolCallRequest struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Params string `json:"params"` // raw JSON arguments
}

// Usage is the provider-reported cost of one model call.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Spend        float64 `json:"spend"`
}

// ModelRequest carries conversation state and available actions.
type ModelRequest struct {
	ThreadID string
	Messages []Message
	Actions  []ActionDescriptor
}

// ModelResponse is either plain text or a batch of tool calls.
type ModelResponse struct {
	Text      string
	ToolCalls []ToolCallRequest
	Usage     Usage
}

// ProviderError is a classifiable model-call failure. StatusCode and
// RetryAfter feed the error classifier.
type ProviderError struct {
	StatusCode int
	Message    string
	RetryAfter float64 // seconds, 0 when the provider sent no hint
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// ProviderGateway is the model-call collaborator. Implementations must
// respect context cancellation and surface failures as *ProviderError
// when they are classifiable.
type ProviderGateway interface {
	CallModel(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}
