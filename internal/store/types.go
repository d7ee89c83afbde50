package store

// ConversationRecord is a cached conversation-list entry. Position keeps
// the server-provided list order across restarts.
type ConversationRecord struct {
	ID                   string
	ParticipantID        string
	ParticipantUsername  string
	ParticipantAvatarURL string
	UnreadCount          int
	MessagesDisappear    bool
	StreakCount          int
	LastStreakCount      int
	LastInteractionAt    int64 // unix ms
	LastMessagePreview   string
	Position             int
}

// MessageRecord is a cached chat message.
type MessageRecord struct {
	ID             int64
	ConversationID string
	UUID           string
	SenderID       string
	ReceiverID     string
	Kind           string
	Content        string
	PostID         string
	PostImageURL   string
	PostCaption    string
	IsRead         bool
	ReplyToUUID    string
	CreatedAt      int64 // unix ms
}
