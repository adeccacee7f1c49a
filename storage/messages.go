package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fakero0t/messageAI-sub004/message"
)

// Save upserts the full message row. Saves are keyed by message id so a
// retried save after a partial failure never duplicates a row.
func (s *Store) Save(msg *message.Message) error {
	if msg.ID == "" {
		return errors.New("message id is required")
	}
	if msg.ConversationID == "" {
		return errors.New("conversation id is required")
	}

	deliveredTo, err := encodeSet(msg.DeliveredTo)
	if err != nil {
		return fmt.Errorf("encode delivered_to for %q: %w", msg.ID, err)
	}
	readBy, err := encodeSet(msg.ReadBy)
	if err != nil {
		return fmt.Errorf("encode read_by for %q: %w", msg.ID, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO messages (
			message_id,
			conversation_id,
			sender_id,
			text,
			media_ref,
			timestamp,
			status,
			delivered_to,
			delivered_at,
			read_by,
			read_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			text         = excluded.text,
			media_ref    = excluded.media_ref,
			timestamp    = excluded.timestamp,
			status       = excluded.status,
			delivered_to = excluded.delivered_to,
			delivered_at = excluded.delivered_at,
			read_by      = excluded.read_by,
			read_at      = excluded.read_at`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Text,
		msg.MediaRef,
		msg.Timestamp.UnixMilli(),
		msg.Status.String(),
		deliveredTo,
		nullInstant(msg.DeliveredAt),
		readBy,
		nullInstant(msg.ReadAt),
	)
	if err != nil {
		return fmt.Errorf("save message %q: %w", msg.ID, err)
	}

	return nil
}

// UpdateStatus sets the status column for a message id.
func (s *Store) UpdateStatus(messageID string, status message.Status) error {
	if messageID == "" {
		return errors.New("message id is required")
	}

	res, err := s.db.Exec(
		`UPDATE messages SET status = ? WHERE message_id = ?`,
		status.String(),
		messageID,
	)
	if err != nil {
		return fmt.Errorf("update status for message %q: %w", messageID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for status update %q: %w", messageID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// FetchAll returns the conversation's messages in send order.
func (s *Store) FetchAll(conversationID string) ([]*message.Message, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}

	rows, err := s.db.Query(
		`SELECT
			message_id,
			conversation_id,
			sender_id,
			text,
			media_ref,
			timestamp,
			status,
			delivered_to,
			delivered_at,
			read_by,
			read_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, rowid ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch messages for conversation %q: %w", conversationID, err)
	}
	defer rows.Close()

	messages := make([]*message.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	return messages, nil
}

// Delete removes a message row. Deleting an absent id is not an error;
// the mirror converges either way.
func (s *Store) Delete(messageID string) error {
	if messageID == "" {
		return errors.New("message id is required")
	}

	if _, err := s.db.Exec(`DELETE FROM messages WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message %q: %w", messageID, err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*message.Message, error) {
	var (
		msg         message.Message
		timestamp   int64
		status      string
		deliveredTo string
		deliveredAt sql.NullInt64
		readBy      string
		readAt      sql.NullInt64
	)

	if err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Text,
		&msg.MediaRef,
		&timestamp,
		&status,
		&deliveredTo,
		&deliveredAt,
		&readBy,
		&readAt,
	); err != nil {
		return nil, err
	}

	msg.Timestamp = time.UnixMilli(timestamp)
	parsed, ok := message.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown status %q for message %q", status, msg.ID)
	}
	msg.Status = parsed

	var err error
	if msg.DeliveredTo, err = decodeSet(deliveredTo); err != nil {
		return nil, fmt.Errorf("decode delivered_to for %q: %w", msg.ID, err)
	}
	if msg.ReadBy, err = decodeSet(readBy); err != nil {
		return nil, fmt.Errorf("decode read_by for %q: %w", msg.ID, err)
	}
	msg.DeliveredAt = instantPtr(deliveredAt)
	msg.ReadAt = instantPtr(readAt)

	return &msg, nil
}

func encodeSet(set map[string]struct{}) (string, error) {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeSet(raw string) (map[string]struct{}, error) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func nullInstant(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func instantPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
