// Package message defines the wire-level chat message model shared by the
// transport, the thread synchronizer, and the local cache.
package message

import "time"

// Kind is the closed set of message variants.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindGif   Kind = "gif"
	KindPost  Kind = "post"
	KindReel  Kind = "reel"
)

// Valid reports whether k is one of the known variants.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindGif, KindPost, KindReel:
		return true
	}
	return false
}

// Message is a single chat message. UUID is globally unique within a
// conversation and is the de-duplication identity: a uuid appears at most
// once in a thread's collection no matter which path (page fetch or
// realtime push) delivered it.
//
// Content is variant-specific: the text body for KindText, the media URL
// for KindImage, and the provider GIF id for KindGif. Post and reel
// messages carry their payload in Post instead.
type Message struct {
	UUID       string    `json:"uuid"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Kind       Kind      `json:"type"`
	Content    string    `json:"content,omitempty"`
	Post       *PostRef  `json:"post,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	IsRead     bool      `json:"isRead"`
	ReplyTo    *Message  `json:"replyTo,omitempty"`
}

// PostRef is the embedded summary of a shared post or reel.
type PostRef struct {
	ID       string `json:"_id"`
	ImageURL string `json:"imageUrl"`
	Caption  string `json:"caption,omitempty"`
}

// Snapshot returns a copy of m suitable for embedding as a reply target:
// the copy's own ReplyTo is cleared so snapshots never nest.
func (m *Message) Snapshot() *Message {
	if m == nil {
		return nil
	}
	snap := *m
	snap.ReplyTo = nil
	return &snap
}

// Between reports whether the message travels between the two given users,
// in either direction. Used to filter cross-talk from other open sockets.
func (m *Message) Between(userA, userB string) bool {
	if m.SenderID == userA && m.ReceiverID == userB {
		return true
	}
	return m.SenderID == userB && m.ReceiverID == userA
}
