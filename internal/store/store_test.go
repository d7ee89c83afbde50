package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	m := &MessageRecord{
		ConversationID: "c1", UUID: "m1", SenderID: "u1", ReceiverID: "u2",
		Kind: "text", Content: "v1", CreatedAt: 1000,
	}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	m.Content = "v2"
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent)", len(msgs))
	}
	if msgs[0].Content != "v2" {
		t.Errorf("content = %q, want v2 (updated)", msgs[0].Content)
	}
}

func TestListMessagesNewestFirst(t *testing.T) {
	db := testDB(t)

	batch := []*MessageRecord{
		{ConversationID: "c1", UUID: "m1", SenderID: "u1", ReceiverID: "u2", Kind: "text", CreatedAt: 1000},
		{ConversationID: "c1", UUID: "m3", SenderID: "u1", ReceiverID: "u2", Kind: "text", CreatedAt: 3000},
		{ConversationID: "c1", UUID: "m2", SenderID: "u2", ReceiverID: "u1", Kind: "text", CreatedAt: 2000},
		{ConversationID: "c2", UUID: "x1", SenderID: "u1", ReceiverID: "u3", Kind: "text", CreatedAt: 9000},
	}
	if err := db.UpsertMessages(batch); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].UUID != "m3" || msgs[1].UUID != "m2" || msgs[2].UUID != "m1" {
		t.Errorf("order = %s,%s,%s, want m3,m2,m1", msgs[0].UUID, msgs[1].UUID, msgs[2].UUID)
	}
}

func TestReplaceConversationsKeepsOrder(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&ConversationRecord{ID: "stale", ParticipantID: "u9"}); err != nil {
		t.Fatal(err)
	}

	fresh := []ConversationRecord{
		{ID: "c2", ParticipantID: "u2", UnreadCount: 1},
		{ID: "c1", ParticipantID: "u1"},
	}
	if err := db.ReplaceConversations(fresh); err != nil {
		t.Fatal(err)
	}

	convs, err := db.ListConversations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].ID != "c2" || convs[1].ID != "c1" {
		t.Errorf("order = %s,%s, want c2,c1", convs[0].ID, convs[1].ID)
	}
}

func TestDeleteConversationPrunesMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&ConversationRecord{ID: "c1", ParticipantID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&MessageRecord{ConversationID: "c1", UUID: "m1", SenderID: "u1", ReceiverID: "me", Kind: "text", CreatedAt: 1}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteConversation("c1"); err != nil {
		t.Fatal(err)
	}

	convs, _ := db.ListConversations(10)
	if len(convs) != 0 {
		t.Errorf("conversations remaining: %d", len(convs))
	}
	msgs, _ := db.ListMessages("c1", 10)
	if len(msgs) != 0 {
		t.Errorf("messages remaining: %d", len(msgs))
	}
}
