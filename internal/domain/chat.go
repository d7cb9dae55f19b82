package domain

import "time"

// Role identifies the author of a chat turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message of a conversation
type ChatTurn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}
