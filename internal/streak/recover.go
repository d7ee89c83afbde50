package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/flicksocial/flick/internal/api"
	"github.com/flicksocial/flick/internal/bus"
	"go.uber.org/zap"
)

// Recoverer is the backend call that restores a recoverable streak.
type Recoverer interface {
	RecoverStreak(ctx context.Context, conversationID string) (*api.Conversation, error)
}

// ConversationApplier receives the refreshed conversation after a
// successful recovery (the conversation-list synchronizer).
type ConversationApplier interface {
	ApplyConversation(conv api.Conversation)
}

// Service performs server-authoritative streak recovery.
type Service struct {
	backend Recoverer
	applier ConversationApplier
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewService creates a recovery service. applier may be nil when no list
// synchronizer is running (one-shot CLI use).
func NewService(backend Recoverer, applier ConversationApplier, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{backend: backend, applier: applier, bus: b, logger: logger}
}

// Recover asks the server to restore the streak and replaces local state
// with the server's response. Local state is never guessed: on failure
// nothing changes.
func (s *Service) Recover(ctx context.Context, conversationID string) (*api.Conversation, error) {
	conv, err := s.backend.RecoverStreak(ctx, conversationID)
	if err != nil {
		s.logger.Warn("streak recovery failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return nil, fmt.Errorf("recover streak: %w", err)
	}

	if s.applier != nil {
		s.applier.ApplyConversation(*conv)
	}
	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:      bus.KindStreakRecovered,
			Timestamp: time.Now(),
			Payload:   conv,
		})
	}
	s.logger.Info("streak recovered",
		zap.String("conversation_id", conversationID),
		zap.Int("streak_count", conv.StreakCount))
	return conv, nil
}
