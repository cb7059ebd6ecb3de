// Package generation adapts text-generation providers to a single Backend contract.
package generation

import (
	"context"
	"errors"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty generation response")

// Message is one entry of the ordered sequence sent to a backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Backend turns an ordered message sequence into response text.
type Backend interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// System, User and Assistant build messages.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }
