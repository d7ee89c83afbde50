package api

import (
	"time"

	"github.com/flicksocial/flick/internal/message"
)

// Participant is the other user of a direct conversation.
type Participant struct {
	ID        string `json:"_id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"profilePicture,omitempty"`
}

// Conversation is one entry of the conversation list. Identity is ID;
// streak display state is derived client-side from LastInteractionAt.
type Conversation struct {
	ID                string           `json:"_id"`
	Participant       Participant      `json:"participant"`
	LastMessage       *message.Message `json:"lastMessage,omitempty"`
	UnreadCount       int              `json:"unreadCount"`
	MessagesDisappear bool             `json:"messagesDisappear"`
	StreakCount       int              `json:"streakCount"`
	LastStreakCount   int              `json:"lastStreakCount"`
	LastInteractionAt time.Time        `json:"lastInteractionAt"`
}

// ConversationPage is one page of the conversation list. An empty
// NextCursor means there are no further pages.
type ConversationPage struct {
	Data       []Conversation `json:"data"`
	NextCursor string         `json:"nextCursor"`
}

// MessagePage is one page of a conversation's history, newest first.
type MessagePage struct {
	Messages     []*message.Message `json:"messages"`
	NextCursor   string             `json:"nextCursor"`
	HasNextPage  bool               `json:"hasNextPage"`
	UnreadCount  int                `json:"unreadCount"`
	Conversation *Conversation      `json:"conversation,omitempty"`
	IsBlocked    bool               `json:"isBlocked"`
}
