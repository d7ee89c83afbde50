// Package chatlist keeps the ordered conversation list and the online
// user set in sync with the backend: forward cursor pagination over
// REST, presence pushes from the realtime connection, and local
// mutations (delete, disappearing-messages toggle, streak recovery).
package chatlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flicksocial/flick/internal/api"
	"github.com/flicksocial/flick/internal/bus"
	"github.com/flicksocial/flick/internal/message"
	"github.com/flicksocial/flick/internal/store"
	"github.com/flicksocial/flick/internal/streak"
	"github.com/flicksocial/flick/internal/transport"
	"go.uber.org/zap"
)

const (
	// searchDebounce delays a fresh fetch after a search-text change so
	// keystroke-level input does not spam page-1 requests.
	searchDebounce = 300 * time.Millisecond

	fetchTimeout = 15 * time.Second
)

// Backend is the REST surface the synchronizer consumes.
type Backend interface {
	GetConversations(ctx context.Context, search, cursor string, limit int) (*api.ConversationPage, error)
	DeleteChat(ctx context.Context, conversationID string) error
	ChangeMessageDeletionSettings(ctx context.Context, conversationID string, disappear bool) error
}

// Events is the slice of the realtime connection the synchronizer consumes.
type Events interface {
	On(kind transport.EventKind, fn func(transport.InboundEvent)) transport.HandlerID
	Off(kind transport.EventKind, id transport.HandlerID)
	OnStatus(fn func(up bool)) transport.HandlerID
	OffStatus(id transport.HandlerID)
	Emit(event transport.EventKind, payload any, ack func(error))
}

// Synchronizer owns the conversation list and the presence set. All
// mutation converges on the append-only de-dup rule: a conversationId
// already present is never inserted twice.
type Synchronizer struct {
	backend Backend
	events  Events
	bus     *bus.Bus
	cache   *store.DB // nil disables warm start and write-through
	logger  *zap.Logger
	limit   int
	memo    *streak.Memo

	mu            sync.Mutex
	conversations []api.Conversation
	present       map[string]struct{}
	online        map[string]struct{}
	search        string
	nextCursor    string
	loadingMore   bool
	closed        bool
	debounce      *time.Timer

	onlineSub  transport.HandlerID
	refetchSub transport.HandlerID
	statusSub  transport.HandlerID
}

// New creates a synchronizer. events and cache may be nil (one-shot CLI
// use fetches pages without realtime or warm start).
func New(backend Backend, events Events, b *bus.Bus, cache *store.DB, logger *zap.Logger, limit int) *Synchronizer {
	if limit <= 0 {
		limit = 8
	}
	return &Synchronizer{
		backend: backend,
		events:  events,
		bus:     b,
		cache:   cache,
		logger:  logger,
		limit:   limit,
		memo:    streak.NewMemo(),
		present: make(map[string]struct{}),
		online:  make(map[string]struct{}),
	}
}

// Start pre-populates from the cache, subscribes to realtime pushes, and
// issues the initial page-1 fetch. A failed initial fetch is not fatal:
// the warm-started view stays until Refresh succeeds.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.warmStart()

	if s.events != nil {
		s.onlineSub = s.events.On(transport.EventOnlineUsers, func(evt transport.InboundEvent) {
			s.replacePresence(evt.OnlineUsers)
		})
		s.refetchSub = s.events.On(transport.EventRefetchConversation, func(transport.InboundEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
			defer cancel()
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("refetch-triggered refresh failed", zap.Error(err))
			}
		})
		s.statusSub = s.events.OnStatus(func(up bool) {
			if up {
				s.events.Emit(transport.EventGetOnlineUsers, nil, nil)
			}
		})
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("initial conversation fetch failed", zap.Error(err))
	}
	return nil
}

// Close unsubscribes from the realtime connection and stops reacting to
// in-flight fetches.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.mu.Unlock()

	if s.events != nil {
		s.events.Off(transport.EventOnlineUsers, s.onlineSub)
		s.events.Off(transport.EventRefetchConversation, s.refetchSub)
		s.events.OffStatus(s.statusSub)
	}
}

// Conversations returns a snapshot of the current list.
func (s *Synchronizer) Conversations() []api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Conversation(nil), s.conversations...)
}

// HasMore reports whether another page can be fetched.
func (s *Synchronizer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextCursor != ""
}

// IsOnline reports whether the user is in the last pushed presence set.
func (s *Synchronizer) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[userID]
	return ok
}

// StreakState derives the display streak for a conversation at now.
func (s *Synchronizer) StreakState(conv api.Conversation, now time.Time) streak.State {
	return s.memo.Derive(conv.LastInteractionAt, now, conv.StreakCount, conv.LastStreakCount)
}

// Query fetches one page. An empty cursor replaces the list (fresh fetch
// or search); a non-empty cursor appends after de-dup.
func (s *Synchronizer) Query(ctx context.Context, search, cursor string) error {
	s.mu.Lock()
	s.search = search
	s.mu.Unlock()
	return s.fetch(ctx, search, cursor)
}

// SetSearch schedules a fresh fetch for the new search text after the
// debounce interval. Every keystroke restarts the timer.
func (s *Synchronizer) SetSearch(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || text == s.search {
		return
	}
	s.search = text
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(searchDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		if err := s.fetch(ctx, text, ""); err != nil {
			s.logger.Warn("search fetch failed", zap.String("search", text), zap.Error(err))
		}
	})
}

// Refresh resets to page 1 and replaces the list with the result.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	search := s.search
	s.mu.Unlock()
	return s.fetch(ctx, search, "")
}

// LoadMore fetches the next page. A no-op when no nextCursor is known or
// while a previous LoadMore is still in flight. A consumed cursor is
// only ever replaced by the page's own nextCursor.
func (s *Synchronizer) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.loadingMore || s.nextCursor == "" {
		s.mu.Unlock()
		return nil
	}
	cursor := s.nextCursor
	search := s.search
	s.loadingMore = true
	s.mu.Unlock()

	err := s.fetch(ctx, search, cursor)

	s.mu.Lock()
	s.loadingMore = false
	s.mu.Unlock()
	return err
}

// Delete removes the conversation on the server, then from the local
// list and cache. Server failure leaves everything unchanged.
func (s *Synchronizer) Delete(ctx context.Context, conversationID string) error {
	if err := s.backend.DeleteChat(ctx, conversationID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}

	s.mu.Lock()
	for i, conv := range s.conversations {
		if conv.ID == conversationID {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			break
		}
	}
	delete(s.present, conversationID)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.DeleteConversation(conversationID); err != nil {
			s.logger.Warn("cache prune failed", zap.Error(err))
		}
	}
	s.publish(bus.KindChatRemoved, conversationID)
	return nil
}

// SetDisappearing toggles disappearing messages for a conversation.
func (s *Synchronizer) SetDisappearing(ctx context.Context, conversationID string, disappear bool) error {
	if err := s.backend.ChangeMessageDeletionSettings(ctx, conversationID, disappear); err != nil {
		return fmt.Errorf("change deletion settings: %w", err)
	}

	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].MessagesDisappear = disappear
			break
		}
	}
	s.mu.Unlock()

	s.publish(bus.KindChatUpdated, conversationID)
	return nil
}

// ApplyConversation replaces a list entry with a server-refreshed copy
// (streak recovery, thread-open metadata). Unknown conversations are
// ignored; the next refresh will pick them up.
func (s *Synchronizer) ApplyConversation(conv api.Conversation) {
	s.mu.Lock()
	applied := false
	for i := range s.conversations {
		if s.conversations[i].ID == conv.ID {
			s.conversations[i] = conv
			applied = true
			break
		}
	}
	s.mu.Unlock()

	if applied {
		if s.cache != nil {
			if err := s.cache.UpsertConversation(recordOf(conv, 0)); err != nil {
				s.logger.Warn("cache write failed", zap.Error(err))
			}
		}
		s.publish(bus.KindChatUpdated, conv.ID)
	}
}

func (s *Synchronizer) fetch(ctx context.Context, search, cursor string) error {
	page, err := s.backend.GetConversations(ctx, search, cursor, s.limit)
	if err != nil {
		return fmt.Errorf("fetch conversations: %w", err)
	}
	s.merge(search, cursor, page)
	return nil
}

func (s *Synchronizer) merge(search, cursor string, page *api.ConversationPage) {
	s.mu.Lock()
	// Discard responses that resolved after close or after the search
	// text moved on (debounced keystrokes racing a slow fetch).
	if s.closed || s.search != search {
		s.mu.Unlock()
		return
	}

	if cursor == "" {
		s.conversations = append([]api.Conversation(nil), page.Data...)
		s.present = make(map[string]struct{}, len(page.Data))
		for _, conv := range page.Data {
			s.present[conv.ID] = struct{}{}
		}
	} else {
		for _, conv := range page.Data {
			if _, ok := s.present[conv.ID]; ok {
				continue
			}
			s.conversations = append(s.conversations, conv)
			s.present[conv.ID] = struct{}{}
		}
	}
	s.nextCursor = page.NextCursor
	snapshot := append([]api.Conversation(nil), s.conversations...)
	s.mu.Unlock()

	if search == "" {
		s.writeCache(snapshot)
	}
	s.publish(bus.KindChatListUpdated, len(snapshot))
}

func (s *Synchronizer) replacePresence(ids []string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.online[id] = struct{}{}
	}
	s.mu.Unlock()

	s.publish(bus.KindPresenceUpdated, len(ids))
}

func (s *Synchronizer) warmStart() {
	if s.cache == nil {
		return
	}
	records, err := s.cache.ListConversations(s.limit)
	if err != nil {
		s.logger.Warn("cache warm start failed", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	s.mu.Lock()
	s.conversations = s.conversations[:0]
	s.present = make(map[string]struct{}, len(records))
	for _, rec := range records {
		s.conversations = append(s.conversations, conversationOf(rec))
		s.present[rec.ID] = struct{}{}
	}
	count := len(s.conversations)
	s.mu.Unlock()

	s.logger.Info("conversation list warm-started", zap.Int("count", count))
	s.publish(bus.KindChatListUpdated, count)
}

func (s *Synchronizer) writeCache(convs []api.Conversation) {
	if s.cache == nil {
		return
	}
	records := make([]store.ConversationRecord, 0, len(convs))
	for i, conv := range convs {
		records = append(records, *recordOf(conv, i))
	}
	if err := s.cache.ReplaceConversations(records); err != nil {
		s.logger.Warn("cache write failed", zap.Error(err))
	}
}

func (s *Synchronizer) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func recordOf(conv api.Conversation, position int) *store.ConversationRecord {
	return &store.ConversationRecord{
		ID:                   conv.ID,
		ParticipantID:        conv.Participant.ID,
		ParticipantUsername:  conv.Participant.Username,
		ParticipantAvatarURL: conv.Participant.AvatarURL,
		UnreadCount:          conv.UnreadCount,
		MessagesDisappear:    conv.MessagesDisappear,
		StreakCount:          conv.StreakCount,
		LastStreakCount:      conv.LastStreakCount,
		LastInteractionAt:    conv.LastInteractionAt.UnixMilli(),
		LastMessagePreview:   previewOf(conv.LastMessage),
		Position:             position,
	}
}

func conversationOf(rec store.ConversationRecord) api.Conversation {
	return api.Conversation{
		ID: rec.ID,
		Participant: api.Participant{
			ID:        rec.ParticipantID,
			Username:  rec.ParticipantUsername,
			AvatarURL: rec.ParticipantAvatarURL,
		},
		UnreadCount:       rec.UnreadCount,
		MessagesDisappear: rec.MessagesDisappear,
		StreakCount:       rec.StreakCount,
		LastStreakCount:   rec.LastStreakCount,
		LastInteractionAt: time.UnixMilli(rec.LastInteractionAt),
	}
}

func previewOf(m *message.Message) string {
	if m == nil {
		return ""
	}
	switch m.Kind {
	case message.KindText:
		return m.Content
	case message.KindImage:
		return "[photo]"
	case message.KindGif:
		return "[gif]"
	case message.KindPost:
		return "[post]"
	case message.KindReel:
		return "[reel]"
	default:
		return ""
	}
}
