// Package thread keeps a single open conversation's message collection
// in sync: backward cursor pagination over REST, realtime pushes with
// cross-talk filtering, and optimistic sends over the persistent
// connection.
package thread

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flicksocial/flick/internal/api"
	"github.com/flicksocial/flick/internal/bus"
	"github.com/flicksocial/flick/internal/message"
	"github.com/flicksocial/flick/internal/readreceipt"
	"github.com/flicksocial/flick/internal/store"
	"github.com/flicksocial/flick/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fetcher is the REST surface the synchronizer consumes.
type Fetcher interface {
	GetMessages(ctx context.Context, conversationID, cursor string, limit int) (*api.MessagePage, error)
}

// Emitter is the slice of the realtime connection used for sending and
// for new-message pushes.
type Emitter interface {
	On(kind transport.EventKind, fn func(transport.InboundEvent)) transport.HandlerID
	Off(kind transport.EventKind, id transport.HandlerID)
	Emit(event transport.EventKind, payload any, ack func(error))
}

// Synchronizer owns one open thread. Messages are held newest-first; the
// collection is re-sorted by CreatedAt after every mutation, so a page
// that arrives after a realtime push still lands in order. Identity is
// the message uuid: a uuid is merged at most once regardless of which
// path delivered it.
type Synchronizer struct {
	fetcher  Fetcher
	emitter  Emitter
	bus      *bus.Bus
	cache    *store.DB // nil disables write-through
	gifs     message.GifResolver
	receipts *readreceipt.Coordinator
	logger   *zap.Logger
	limit    int

	selfID string
	peerID string
	convID string

	mu           sync.Mutex
	messages     []*message.Message
	present      map[string]struct{}
	nextCursor   string
	hasNextPage  bool
	loaded       bool
	loadingMore  bool
	conversation *api.Conversation
	isBlocked    bool
	closed       bool

	newMsgSub transport.HandlerID
}

// New creates a synchronizer for one conversation between selfID and
// peerID. emitter, cache, gifs, and receipts may each be nil.
func New(fetcher Fetcher, emitter Emitter, b *bus.Bus, cache *store.DB, gifs message.GifResolver, receipts *readreceipt.Coordinator, logger *zap.Logger, conversationID, selfID, peerID string, limit int) *Synchronizer {
	if limit <= 0 {
		limit = 20
	}
	return &Synchronizer{
		fetcher:  fetcher,
		emitter:  emitter,
		bus:      b,
		cache:    cache,
		gifs:     gifs,
		receipts: receipts,
		logger:   logger,
		limit:    limit,
		selfID:   selfID,
		peerID:   peerID,
		convID:   conversationID,
		present:  make(map[string]struct{}),
	}
}

// Open resets the collection, fetches the newest page, subscribes to
// realtime pushes, and marks the thread read once. Must be called before
// LoadMore or any send.
func (s *Synchronizer) Open(ctx context.Context) error {
	s.mu.Lock()
	s.messages = s.messages[:0]
	s.present = make(map[string]struct{})
	s.nextCursor = ""
	s.hasNextPage = false
	s.loaded = false
	s.closed = false
	s.mu.Unlock()

	if s.emitter != nil && s.newMsgSub == 0 {
		s.newMsgSub = s.emitter.On(transport.EventNewMessage, s.handleNewMessage)
	}

	s.warmStart()

	page, err := s.fetcher.GetMessages(ctx, s.convID, "", s.limit)
	if err != nil {
		return fmt.Errorf("open thread: %w", err)
	}

	s.mu.Lock()
	for _, m := range page.Messages {
		s.insertLocked(m)
	}
	s.sortLocked()
	s.nextCursor = page.NextCursor
	s.hasNextPage = page.HasNextPage
	s.loaded = true
	s.conversation = page.Conversation
	s.isBlocked = page.IsBlocked
	unread := page.UnreadCount
	s.mu.Unlock()

	s.writeCache(page.Messages)
	s.publish(bus.KindMessageMerged, s.convID)

	if s.receipts != nil {
		s.receipts.FocusIn(ctx, s.convID, unread)
	}
	return nil
}

// Close unsubscribes from realtime pushes and re-arms the read receipt
// so the next open marks again.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.emitter != nil && s.newMsgSub != 0 {
		s.emitter.Off(transport.EventNewMessage, s.newMsgSub)
		s.newMsgSub = 0
	}
	if s.receipts != nil {
		s.receipts.FocusOut(s.convID)
	}
}

// Messages returns a snapshot of the collection, newest first.
func (s *Synchronizer) Messages() []*message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*message.Message(nil), s.messages...)
}

// Conversation returns the metadata delivered with the first page, or
// nil before Open succeeds.
func (s *Synchronizer) Conversation() *api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

// IsBlocked reports whether either side has blocked the other.
func (s *Synchronizer) IsBlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isBlocked
}

// HasMore reports whether older history remains.
func (s *Synchronizer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasNextPage && s.nextCursor != ""
}

// LoadMore fetches the next older page. A no-op before Open, while a
// previous LoadMore is in flight, or when history is exhausted.
func (s *Synchronizer) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || !s.loaded || s.loadingMore || !s.hasNextPage || s.nextCursor == "" {
		s.mu.Unlock()
		return nil
	}
	cursor := s.nextCursor
	s.loadingMore = true
	s.mu.Unlock()

	page, err := s.fetcher.GetMessages(ctx, s.convID, cursor, s.limit)

	s.mu.Lock()
	s.loadingMore = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load more: %w", err)
	}
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	for _, m := range page.Messages {
		s.insertLocked(m)
	}
	s.sortLocked()
	s.nextCursor = page.NextCursor
	s.hasNextPage = page.HasNextPage
	s.mu.Unlock()

	s.writeCache(page.Messages)
	s.publish(bus.KindMessageMerged, s.convID)
	return nil
}

// SendText sends a text message, optimistically merged before the
// gateway acknowledges. replyTo may be nil.
func (s *Synchronizer) SendText(body string, replyTo *message.Message) (*message.Message, error) {
	return s.send(message.KindText, body, replyTo)
}

// SendGif sends a provider GIF by id.
func (s *Synchronizer) SendGif(gifID string, replyTo *message.Message) (*message.Message, error) {
	return s.send(message.KindGif, gifID, replyTo)
}

// SendImage sends an already-uploaded image by URL.
func (s *Synchronizer) SendImage(imageURL string, replyTo *message.Message) (*message.Message, error) {
	return s.send(message.KindImage, imageURL, replyTo)
}

// ReplyPreview resolves the rendering of a reply target.
func (s *Synchronizer) ReplyPreview(ctx context.Context, target *message.Message) *message.ReplyPreview {
	return message.ResolvePreview(ctx, target, s.gifs)
}

func (s *Synchronizer) send(kind message.Kind, content string, replyTo *message.Message) (*message.Message, error) {
	if s.emitter == nil {
		return nil, transport.ErrNotConnected
	}
	s.mu.Lock()
	if s.closed || !s.loaded {
		s.mu.Unlock()
		return nil, fmt.Errorf("thread not open")
	}
	s.mu.Unlock()

	now := time.Now().UTC()
	m := &message.Message{
		UUID:       uuid.NewString(),
		SenderID:   s.selfID,
		ReceiverID: s.peerID,
		Kind:       kind,
		Content:    content,
		CreatedAt:  now,
		IsRead:     false,
	}
	var snapshot *message.Message
	if replyTo != nil {
		snapshot = replyTo.Snapshot()
		m.ReplyTo = snapshot
	}

	// Merge locally first; the push echoing our own uuid de-dups.
	s.merge(m)

	payload := transport.SendMessagePayload{
		ReceiverID:           s.peerID,
		Content:              content,
		Type:                 string(kind),
		UUID:                 m.UUID,
		CreatedAt:            now.Format(time.RFC3339Nano),
		ReplyToMessageObject: snapshot,
	}
	if snapshot != nil {
		payload.ReplyTo = snapshot.UUID
	}
	s.emitter.Emit(transport.EventSendMessage, payload, func(err error) {
		if err != nil {
			s.logger.Warn("send not acknowledged",
				zap.String("uuid", m.UUID),
				zap.String("conversation", s.convID),
				zap.Error(err))
		}
	})

	s.publish(bus.KindMessageSent, m.UUID)
	return m, nil
}

func (s *Synchronizer) handleNewMessage(evt transport.InboundEvent) {
	m := evt.Message
	if m == nil {
		return
	}
	// The push stream carries every conversation; keep only messages
	// exchanged between the two participants of this thread.
	if !m.Between(s.selfID, s.peerID) {
		return
	}
	if merged := s.merge(m); merged {
		s.publish(bus.KindMessageMerged, m.UUID)
	}
}

// merge inserts m unless its uuid is already present. Reports whether
// the collection changed.
func (s *Synchronizer) merge(m *message.Message) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.present[m.UUID]; ok {
		s.mu.Unlock()
		return false
	}
	s.insertLocked(m)
	s.sortLocked()
	s.mu.Unlock()

	s.writeCache([]*message.Message{m})
	return true
}

func (s *Synchronizer) insertLocked(m *message.Message) {
	if m == nil || m.UUID == "" {
		return
	}
	if _, ok := s.present[m.UUID]; ok {
		return
	}
	s.messages = append(s.messages, m)
	s.present[m.UUID] = struct{}{}
}

func (s *Synchronizer) sortLocked() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.After(s.messages[j].CreatedAt)
	})
}

// warmStart shows cached history while the first page is in flight.
// The page merges over it; shared uuids de-dup.
func (s *Synchronizer) warmStart() {
	if s.cache == nil {
		return
	}
	records, err := s.cache.ListMessages(s.convID, s.limit)
	if err != nil {
		s.logger.Warn("cache warm start failed", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	s.mu.Lock()
	for i := range records {
		s.insertLocked(messageOf(records[i]))
	}
	s.sortLocked()
	count := len(s.messages)
	s.mu.Unlock()

	s.logger.Info("thread warm-started", zap.Int("count", count))
	s.publish(bus.KindMessageMerged, s.convID)
}

func (s *Synchronizer) writeCache(msgs []*message.Message) {
	if s.cache == nil || len(msgs) == 0 {
		return
	}
	records := make([]*store.MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.UUID == "" {
			continue
		}
		records = append(records, recordOf(s.convID, m))
	}
	if err := s.cache.UpsertMessages(records); err != nil {
		s.logger.Warn("cache write failed", zap.Error(err))
	}
}

func (s *Synchronizer) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func messageOf(rec store.MessageRecord) *message.Message {
	m := &message.Message{
		UUID:       rec.UUID,
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Kind:       message.Kind(rec.Kind),
		Content:    rec.Content,
		IsRead:     rec.IsRead,
		CreatedAt:  time.UnixMilli(rec.CreatedAt),
	}
	if rec.PostID != "" {
		m.Post = &message.PostRef{
			ID:       rec.PostID,
			ImageURL: rec.PostImageURL,
			Caption:  rec.PostCaption,
		}
	}
	return m
}

func recordOf(convID string, m *message.Message) *store.MessageRecord {
	rec := &store.MessageRecord{
		ConversationID: convID,
		UUID:           m.UUID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Kind:           string(m.Kind),
		Content:        m.Content,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
	if m.Post != nil {
		rec.PostID = m.Post.ID
		rec.PostImageURL = m.Post.ImageURL
		rec.PostCaption = m.Post.Caption
	}
	if m.ReplyTo != nil {
		rec.ReplyToUUID = m.ReplyTo.UUID
	}
	return rec
}
