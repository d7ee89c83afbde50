package transport

import (
	"encoding/json"
	"fmt"

	"github.com/flicksocial/flick/internal/message"
)

// EventKind names an event on the realtime connection.
type EventKind string

// Inbound events pushed by the gateway.
const (
	EventNewMessage          EventKind = "newMessage"
	EventOnlineUsers         EventKind = "onlineUsers"
	EventRefetchConversation EventKind = "refetchConversation"
	EventTyping              EventKind = "typing"
	EventBulkPostComplete    EventKind = "bulkPostComplete"
	EventBulkPostError       EventKind = "bulkPostError"
)

// Outbound events emitted by this client.
const (
	EventSendMessage    EventKind = "sendMessage"
	EventGetOnlineUsers EventKind = "getOnlineUsers"
	EventSendPost       EventKind = "sendPost"
)

// envelope is the wire format both directions.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypingEvent signals that a user started or stopped typing.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// InboundEvent is the decoded form of a gateway push. Kind selects which
// payload field is set; events with no payload set none.
type InboundEvent struct {
	Kind        EventKind
	Message     *message.Message // EventNewMessage
	OnlineUsers []string         // EventOnlineUsers
	Typing      *TypingEvent     // EventTyping
	Error       string           // EventBulkPostError
}

// decodeInbound parses an envelope into a typed event. Unknown event
// names are an error so payload-shape guessing never reaches consumers.
func decodeInbound(env envelope) (InboundEvent, error) {
	switch EventKind(env.Event) {
	case EventNewMessage:
		var m message.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return InboundEvent{}, fmt.Errorf("decode newMessage: %w", err)
		}
		return InboundEvent{Kind: EventNewMessage, Message: &m}, nil

	case EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(env.Payload, &ids); err != nil {
			return InboundEvent{}, fmt.Errorf("decode onlineUsers: %w", err)
		}
		return InboundEvent{Kind: EventOnlineUsers, OnlineUsers: ids}, nil

	case EventRefetchConversation:
		return InboundEvent{Kind: EventRefetchConversation}, nil

	case EventTyping:
		var typing TypingEvent
		if err := json.Unmarshal(env.Payload, &typing); err != nil {
			return InboundEvent{}, fmt.Errorf("decode typing: %w", err)
		}
		return InboundEvent{Kind: EventTyping, Typing: &typing}, nil

	case EventBulkPostComplete:
		return InboundEvent{Kind: EventBulkPostComplete}, nil

	case EventBulkPostError:
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(env.Payload, &payload)
		return InboundEvent{Kind: EventBulkPostError, Error: payload.Message}, nil

	default:
		return InboundEvent{}, fmt.Errorf("unknown inbound event %q", env.Event)
	}
}

// SendMessagePayload is the outbound sendMessage payload. The reply
// target travels as a snapshot so the receiver can render the preview
// before the referenced message round-trips.
type SendMessagePayload struct {
	ReceiverID           string           `json:"receiverId"`
	Content              string           `json:"content"`
	Type                 string           `json:"type"`
	ReplyTo              string           `json:"replyTo,omitempty"`
	ReplyToMessageObject *message.Message `json:"replyToMessageObject,omitempty"`
	UUID                 string           `json:"uuid"`
	CreatedAt            string           `json:"createdAt"`
}

// SendPostPayload shares a post or reel with multiple receivers.
type SendPostPayload struct {
	Type        string           `json:"type"`
	ReceiverIDs []string         `json:"receiverIds"`
	PostID      string           `json:"postId"`
	Post        *message.PostRef `json:"post"`
}
