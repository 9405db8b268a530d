// -----------------------------------------------------------------------
// Conversation Context - Assembled prompt context for generation
// -----------------------------------------------------------------------

package models

import "time"

// ChatMessage is one turn in a conversation
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ConversationContext is the assembled context handed to the generation
// backend. Built from the job payload and prior history, and cached per
// subject so repeat requests skip the rebuild.
type ConversationContext struct {
	SubjectID    string        `json:"subject_id"`
	Category     string        `json:"category"`
	Requirements string        `json:"requirements"`
	Messages     []ChatMessage `json:"messages"`
	BuiltAt      time.Time     `json:"built_at"`
}
