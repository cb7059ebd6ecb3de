package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced an exchange.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrLogWrite wraps every failed append to the exchange log.
	ErrLogWrite = errors.New("exchange log write failed")
	// ErrInvalidRole is returned for roles other than user/assistant.
	ErrInvalidRole = errors.New("invalid exchange role")
)

// ParseRole validates a role string.
func ParseRole(v string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(v))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, v)
	}
}

// Label is the capitalized role used in prompt context blocks.
func (r Role) Label() string {
	s := string(r)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Exchange stores a single user or assistant turn. Seq is strictly increasing per user.
type Exchange struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Seq         int64     `json:"seq"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"timestamp"`
}

// Record is the similarity-searchable copy of an exchange.
type Record struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	UserID    string    `json:"user_id"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"timestamp"`
}

// Log is the append-only exchange log.
type Log interface {
	// Append durably stores the exchange and returns it with Seq (and ID) assigned.
	Append(ctx context.Context, ex Exchange) (Exchange, error)
	// Recent returns the last limit exchanges of userID in chronological order.
	Recent(ctx context.Context, userID string, limit int) ([]Exchange, error)
	Close() error
}

// FormatExchanges renders exchanges as "Role: content" lines.
func FormatExchanges(items []Exchange) string {
	lines := make([]string, 0, len(items))
	for _, ex := range items {
		lines = append(lines, ex.Role.Label()+": "+ex.Content)
	}
	return strings.Join(lines, "\n")
}

func reverseExchanges(items []Exchange) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
