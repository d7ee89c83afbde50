package store

// UpsertMessage inserts or updates a cached message (idempotent on
// conversation_id + uuid, mirroring the in-memory de-dup identity).
func (db *DB) UpsertMessage(m *MessageRecord) error {
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, uuid, sender_id, receiver_id, kind, content,
			post_id, post_image_url, post_caption, is_read, reply_to_uuid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, uuid) DO UPDATE SET
			content = excluded.content,
			is_read = excluded.is_read`,
		m.ConversationID, m.UUID, m.SenderID, m.ReceiverID, m.Kind, m.Content,
		m.PostID, m.PostImageURL, m.PostCaption, m.IsRead, m.ReplyToUUID, m.CreatedAt)
	return err
}

// UpsertMessages writes a batch of messages in one transaction.
func (db *DB) UpsertMessages(msgs []*MessageRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, uuid, sender_id, receiver_id, kind, content,
				post_id, post_image_url, post_caption, is_read, reply_to_uuid, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, uuid) DO UPDATE SET
				content = excluded.content,
				is_read = excluded.is_read`,
			m.ConversationID, m.UUID, m.SenderID, m.ReceiverID, m.Kind, m.Content,
			m.PostID, m.PostImageURL, m.PostCaption, m.IsRead, m.ReplyToUUID, m.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListMessages returns the most recent cached messages for a
// conversation, newest first.
func (db *DB) ListMessages(conversationID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, conversation_id, uuid, sender_id, receiver_id, kind, content,
			post_id, post_image_url, post_caption, is_read, reply_to_uuid, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []MessageRecord
	for rows.Next() {
		var m MessageRecord
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UUID, &m.SenderID, &m.ReceiverID,
			&m.Kind, &m.Content, &m.PostID, &m.PostImageURL, &m.PostCaption,
			&m.IsRead, &m.ReplyToUUID, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
