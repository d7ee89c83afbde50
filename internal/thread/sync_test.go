package thread

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flicksocial/flick/internal/api"
	"github.com/flicksocial/flick/internal/message"
	"github.com/flicksocial/flick/internal/readreceipt"
	"github.com/flicksocial/flick/internal/store"
	"github.com/flicksocial/flick/internal/transport"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]*api.MessagePage // keyed by cursor
	calls []string
	err   error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string]*api.MessagePage)}
}

func (f *fakeFetcher) page(cursor string, p *api.MessagePage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[cursor] = p
}

func (f *fakeFetcher) GetMessages(_ context.Context, _, cursor string, _ int) (*api.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cursor)
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.pages[cursor]; ok {
		return p, nil
	}
	return &api.MessagePage{}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEmitter struct {
	mu       sync.Mutex
	handlers map[transport.EventKind]map[transport.HandlerID]func(transport.InboundEvent)
	sent     []transport.SendMessagePayload
	ackErr   error
	nextID   transport.HandlerID
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{
		handlers: make(map[transport.EventKind]map[transport.HandlerID]func(transport.InboundEvent)),
	}
}

func (f *fakeEmitter) On(kind transport.EventKind, fn func(transport.InboundEvent)) transport.HandlerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if f.handlers[kind] == nil {
		f.handlers[kind] = make(map[transport.HandlerID]func(transport.InboundEvent))
	}
	f.handlers[kind][f.nextID] = fn
	return f.nextID
}

func (f *fakeEmitter) Off(kind transport.EventKind, id transport.HandlerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers[kind], id)
}

func (f *fakeEmitter) Emit(_ transport.EventKind, payload any, ack func(error)) {
	f.mu.Lock()
	if p, ok := payload.(transport.SendMessagePayload); ok {
		f.sent = append(f.sent, p)
	}
	err := f.ackErr
	f.mu.Unlock()
	if ack != nil {
		ack(err)
	}
}

func (f *fakeEmitter) push(m *message.Message) {
	f.mu.Lock()
	fns := make([]func(transport.InboundEvent), 0, len(f.handlers[transport.EventNewMessage]))
	for _, fn := range f.handlers[transport.EventNewMessage] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(transport.InboundEvent{Kind: transport.EventNewMessage, Message: m})
	}
}

func msg(uuid, sender, receiver string, at time.Time) *message.Message {
	return &message.Message{
		UUID:       uuid,
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       message.KindText,
		Content:    "body " + uuid,
		CreatedAt:  at,
	}
}

func testThread(t *testing.T, fetcher *fakeFetcher, emitter *fakeEmitter) *Synchronizer {
	t.Helper()
	var em Emitter
	if emitter != nil {
		em = emitter
	}
	s := New(fetcher, em, nil, nil, nil, nil, zap.NewNop(), "conv1", "me", "them", 3)
	t.Cleanup(s.Close)
	return s
}

func TestOpenLoadsNewestPage(t *testing.T) {
	base := time.Now()
	fetcher := newFakeFetcher()
	fetcher.page("", &api.MessagePage{
		Messages:    []*message.Message{msg("m3", "them", "me", base.Add(3 * time.Minute)), msg("m2", "me", "them", base.Add(2 * time.Minute))},
		NextCursor:  "c2",
		HasNextPage: true,
		Conversation: &api.Conversation{ID: "conv1"},
	})

	s := testThread(t, fetcher, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := s.Messages()
	if len(got) != 2 || got[0].UUID != "m3" || got[1].UUID != "m2" {
		t.Fatalf("unexpected collection: %+v", got)
	}
	if !s.HasMore() {
		t.Fatal("expected more history")
	}
	if s.Conversation() == nil || s.Conversation().ID != "conv1" {
		t.Fatal("expected conversation metadata")
	}
}

func TestLoadMoreAppendsOlderAndResorts(t *testing.T) {
	base := time.Now()
	fetcher := newFakeFetcher()
	fetcher.page("", &api.MessagePage{
		Messages:    []*message.Message{msg("m3", "me", "them", base.Add(3 * time.Minute))},
		NextCursor:  "c2",
		HasNextPage: true,
	})
	fetcher.page("c2", &api.MessagePage{
		Messages: []*message.Message{msg("m1", "them", "me", base.Add(1 * time.Minute)), msg("m2", "me", "them", base.Add(2 * time.Minute))},
	})

	s := testThread(t, fetcher, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadMore(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := s.Messages()
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i, want := range []string{"m3", "m2", "m1"} {
		if got[i].UUID != want {
			t.Fatalf("position %d: got %s, want %s", i, got[i].UUID, want)
		}
	}
	if s.HasMore() {
		t.Fatal("expected history exhausted")
	}
}

func TestLoadMoreBeforeOpenIsNoop(t *testing.T) {
	fetcher := newFakeFetcher()
	s := testThread(t, fetcher, nil)

	if err := s.LoadMore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := fetcher.callCount(); n != 0 {
		t.Fatalf("expected no fetch before open, got %d", n)
	}
}

func TestNewMessageDedupedByUUID(t *testing.T) {
	base := time.Now()
	fetcher := newFakeFetcher()
	fetcher.page("", &api.MessagePage{
		Messages: []*message.Message{msg("m1", "them", "me", base)},
	})
	emitter := newFakeEmitter()

	s := testThread(t, fetcher, emitter)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Same uuid pushed again plus a genuinely new one.
	emitter.push(msg("m1", "them", "me", base))
	emitter.push(msg("m2", "them", "me", base.Add(time.Minute)))

	got := s.Messages()
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2 after de-dup", len(got))
	}
	if got[0].UUID != "m2" {
		t.Fatalf("expected m2 newest, got %s", got[0].UUID)
	}
}

func TestNewMessageCrossTalkFiltered(t *testing.T) {
	fetcher := newFakeFetcher()
	emitter := newFakeEmitter()

	s := testThread(t, fetcher, emitter)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	emitter.push(msg("other", "stranger", "me", time.Now()))
	if got := s.Messages(); len(got) != 0 {
		t.Fatalf("cross-talk merged: %+v", got)
	}

	emitter.push(msg("mine", "them", "me", time.Now()))
	if got := s.Messages(); len(got) != 1 {
		t.Fatal("expected in-thread push merged")
	}
}

func TestSendTextOptimisticMerge(t *testing.T) {
	fetcher := newFakeFetcher()
	emitter := newFakeEmitter()

	s := testThread(t, fetcher, emitter)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	sent, err := s.SendText("hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if sent.UUID == "" {
		t.Fatal("expected generated uuid")
	}

	got := s.Messages()
	if len(got) != 1 || got[0].UUID != sent.UUID {
		t.Fatal("expected optimistic merge before ack")
	}

	emitter.mu.Lock()
	payload := emitter.sent[0]
	emitter.mu.Unlock()
	if payload.UUID != sent.UUID || payload.Type != "text" || payload.ReceiverID != "them" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	// The gateway echoes our own send; the uuid must not duplicate.
	echo := *sent
	emitter.push(&echo)
	if got := s.Messages(); len(got) != 1 {
		t.Fatal("echoed send duplicated the message")
	}
}

func TestSendWithReplySnapshots(t *testing.T) {
	fetcher := newFakeFetcher()
	emitter := newFakeEmitter()

	s := testThread(t, fetcher, emitter)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	target := msg("t1", "them", "me", time.Now())
	target.ReplyTo = msg("t0", "me", "them", time.Now().Add(-time.Hour))

	sent, err := s.SendText("reply body", target)
	if err != nil {
		t.Fatal(err)
	}
	if sent.ReplyTo == nil || sent.ReplyTo.UUID != "t1" {
		t.Fatal("expected reply target attached")
	}
	if sent.ReplyTo.ReplyTo != nil {
		t.Fatal("snapshot must not nest")
	}

	emitter.mu.Lock()
	payload := emitter.sent[0]
	emitter.mu.Unlock()
	if payload.ReplyTo != "t1" || payload.ReplyToMessageObject == nil {
		t.Fatalf("unexpected reply payload: %+v", payload)
	}
}

func TestSendFailedAckKeepsMessage(t *testing.T) {
	fetcher := newFakeFetcher()
	emitter := newFakeEmitter()
	emitter.ackErr = errors.New("gateway down")

	s := testThread(t, fetcher, emitter)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	sent, err := s.SendText("hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	// Optimistic merge is not rolled back on a failed ack; the next
	// refetch reconciles.
	if got := s.Messages(); len(got) != 1 || got[0].UUID != sent.UUID {
		t.Fatal("expected message kept after failed ack")
	}
}

func TestCloseUnregistersFirstRegistrant(t *testing.T) {
	fetcher := newFakeFetcher()
	emitter := newFakeEmitter()

	// The thread is the emitter's very first registrant.
	s := testThread(t, fetcher, emitter)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	emitter.mu.Lock()
	live := len(emitter.handlers[transport.EventNewMessage])
	emitter.mu.Unlock()
	if live != 0 {
		t.Fatalf("%d handlers still registered after close", live)
	}

	// Reopen registers exactly one handler, never a duplicate.
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	emitter.mu.Lock()
	live = len(emitter.handlers[transport.EventNewMessage])
	emitter.mu.Unlock()
	if live != 1 {
		t.Fatalf("%d handlers registered after reopen, want 1", live)
	}
}

func TestOpenWarmStartsFromCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&store.MessageRecord{
		ConversationID: "conv1", UUID: "m1", SenderID: "them", ReceiverID: "me",
		Kind: "text", Content: "cached", CreatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	fetcher := newFakeFetcher()
	fetcher.page("", &api.MessagePage{
		// The page re-delivers m1 plus a newer message.
		Messages: []*message.Message{
			msg("m1", "them", "me", time.UnixMilli(1000)),
			msg("m2", "me", "them", base),
		},
	})

	s := New(fetcher, nil, nil, db, nil, nil, zap.NewNop(), "conv1", "me", "them", 3)
	t.Cleanup(s.Close)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := s.Messages()
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2 after cache+page de-dup", len(got))
	}
	if got[0].UUID != "m2" || got[1].UUID != "m1" {
		t.Fatalf("unexpected order: %s %s", got[0].UUID, got[1].UUID)
	}
}

type fakeMarker struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeMarker) MarkMessagesRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return nil
}

func TestOpenMarksReadOnce(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.page("", &api.MessagePage{UnreadCount: 3})

	marker := &fakeMarker{}
	receipts := readreceipt.New(marker, zap.NewNop())
	s := New(fetcher, nil, nil, nil, nil, receipts, zap.NewNop(), "conv1", "me", "them", 3)
	t.Cleanup(s.Close)

	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	marker.mu.Lock()
	defer marker.mu.Unlock()
	if len(marker.calls) != 1 || marker.calls[0] != "conv1" {
		t.Fatalf("expected one mark-read call, got %v", marker.calls)
	}
}
