package store

import "time"

// UpsertConversation inserts or updates a cached conversation (idempotent on id).
func (db *DB) UpsertConversation(c *ConversationRecord) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, participant_id, participant_username, participant_avatar_url,
			unread_count, messages_disappear, streak_count, last_streak_count,
			last_interaction_at, last_message_preview, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participant_username = excluded.participant_username,
			participant_avatar_url = excluded.participant_avatar_url,
			unread_count = excluded.unread_count,
			messages_disappear = excluded.messages_disappear,
			streak_count = excluded.streak_count,
			last_streak_count = excluded.last_streak_count,
			last_interaction_at = excluded.last_interaction_at,
			last_message_preview = excluded.last_message_preview,
			position = excluded.position,
			updated_at = excluded.updated_at`,
		c.ID, c.ParticipantID, c.ParticipantUsername, c.ParticipantAvatarURL,
		c.UnreadCount, c.MessagesDisappear, c.StreakCount, c.LastStreakCount,
		c.LastInteractionAt, c.LastMessagePreview, c.Position, now)
	return err
}

// ListConversations returns cached conversations in list order.
func (db *DB) ListConversations(limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, participant_id, participant_username, participant_avatar_url,
			unread_count, messages_disappear, streak_count, last_streak_count,
			last_interaction_at, last_message_preview, position
		FROM conversations
		ORDER BY position ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []ConversationRecord
	for rows.Next() {
		var c ConversationRecord
		if err := rows.Scan(&c.ID, &c.ParticipantID, &c.ParticipantUsername, &c.ParticipantAvatarURL,
			&c.UnreadCount, &c.MessagesDisappear, &c.StreakCount, &c.LastStreakCount,
			&c.LastInteractionAt, &c.LastMessagePreview, &c.Position); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// ReplaceConversations swaps the cached list for a fresh page-1 snapshot
// in a single transaction.
func (db *DB) ReplaceConversations(convs []ConversationRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for i, c := range convs {
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, participant_id, participant_username, participant_avatar_url,
				unread_count, messages_disappear, streak_count, last_streak_count,
				last_interaction_at, last_message_preview, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ParticipantID, c.ParticipantUsername, c.ParticipantAvatarURL,
			c.UnreadCount, c.MessagesDisappear, c.StreakCount, c.LastStreakCount,
			c.LastInteractionAt, c.LastMessagePreview, i, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteConversation removes a conversation and its cached messages.
func (db *DB) DeleteConversation(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
