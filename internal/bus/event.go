package bus

import "time"

// Event kinds are dot-namespaced so subscribers can filter on a prefix
// ("conn.", "chat.", "message.", "presence.", "streak.").
const (
	KindConnStatusChanged = "conn.status_changed"

	KindChatListUpdated = "chat.list_updated"
	KindChatUpdated     = "chat.updated"
	KindChatRemoved     = "chat.removed"

	KindPresenceUpdated = "presence.updated"

	KindMessageMerged = "message.merged"
	KindMessageSent   = "message.sent"

	KindStreakRecovered = "streak.recovered"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
