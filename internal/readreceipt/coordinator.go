// Package readreceipt issues the conversation-granular mark-read call.
// Read state has no per-message acknowledgement protocol; a single call
// per thread focus clears the unread counter server-side.
package readreceipt

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Marker is the backend mark-read call.
type Marker interface {
	MarkMessagesRead(ctx context.Context, conversationID string) error
}

// Coordinator guarantees at most one mark-read call per focus of a
// conversation with unread messages. Re-render of an already focused
// thread issues nothing; FocusOut re-arms the conversation.
type Coordinator struct {
	marker Marker
	logger *zap.Logger

	mu     sync.Mutex
	marked map[string]bool
}

// New creates a coordinator.
func New(marker Marker, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		marker: marker,
		logger: logger,
		marked: make(map[string]bool),
	}
}

// FocusIn is called when a conversation thread gains focus with the
// current unread count. It fires the mark-read call only when there is
// something unread and this focus has not fired yet. A failed call
// re-arms so the next focus retries; failure is never fatal.
func (c *Coordinator) FocusIn(ctx context.Context, conversationID string, unreadCount int) {
	if unreadCount <= 0 {
		return
	}

	c.mu.Lock()
	if c.marked[conversationID] {
		c.mu.Unlock()
		return
	}
	c.marked[conversationID] = true
	c.mu.Unlock()

	if err := c.marker.MarkMessagesRead(ctx, conversationID); err != nil {
		c.logger.Warn("mark read failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		c.mu.Lock()
		delete(c.marked, conversationID)
		c.mu.Unlock()
	}
}

// FocusOut re-arms the conversation so the next FocusIn can mark again.
func (c *Coordinator) FocusOut(conversationID string) {
	c.mu.Lock()
	delete(c.marked, conversationID)
	c.mu.Unlock()
}
