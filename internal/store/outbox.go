package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/imsync/internal/model"
)

// QueueOutbox adds a message to the send outbox with status queued.
func (db *DB) QueueOutbox(e *OutboxEntry) error {
	content, err := json.Marshal(e.Content)
	if err != nil {
		return fmt.Errorf("encode outbox content: %w", err)
	}
	now := time.Now().UnixMilli()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	res, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, conversation_id, group_id, recv_id, content_type, content, correlation_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'queued', ?, ?)`,
		e.ClientMsgID, e.ConversationID, e.GroupID, e.RecvID, string(e.ContentType), string(content), e.CorrelationID, e.CreatedAt, now)
	if err != nil {
		return err
	}
	e.ID, _ = res.LastInsertId()
	e.Status = OutboxQueued
	return nil
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	return db.setOutboxStatus(clientMsgID, OutboxSending, "", "")
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server message ID.
func (db *DB) MarkOutboxSent(clientMsgID, serverMsgID string) error {
	return db.setOutboxStatus(clientMsgID, OutboxSent, "", serverMsgID)
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	return db.setOutboxStatus(clientMsgID, OutboxFailed, errMsg, "")
}

func (db *DB) setOutboxStatus(clientMsgID, status, errMsg, serverMsgID string) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE outbox SET status = ?, error_message = ?,
			server_msg_id = CASE WHEN ? = '' THEN server_msg_id ELSE ? END,
			updated_at = ?
		WHERE client_msg_id = ?`,
		status, errMsg, serverMsgID, serverMsgID, now, clientMsgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("outbox entry %s: %w", clientMsgID, sql.ErrNoRows)
	}
	return nil
}

// PendingOutbox returns outbox entries that are still queued, oldest first.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	return db.queryOutbox(`WHERE status = 'queued' ORDER BY created_at ASC, id ASC`)
}

// RequeueSending puts entries left in 'sending' by an interrupted run back in
// the queue. It returns how many were requeued.
func (db *DB) RequeueSending() (int, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE outbox SET status = 'queued', updated_at = ? WHERE status = 'sending'`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetOutbox returns one entry by client message ID, or nil if missing.
func (db *DB) GetOutbox(clientMsgID string) (*OutboxEntry, error) {
	entries, err := db.queryOutbox(`WHERE client_msg_id = ?`, clientMsgID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (db *DB) queryOutbox(where string, args ...any) ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_msg_id, conversation_id, group_id, recv_id, content_type, content,
			correlation_id, status, error_message, server_msg_id, created_at
		FROM outbox `+where, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			e       OutboxEntry
			ct      string
			content string
		)
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.ConversationID, &e.GroupID, &e.RecvID, &ct, &content,
			&e.CorrelationID, &e.Status, &e.ErrorMessage, &e.ServerMsgID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ContentType = model.ContentType(ct)
		if err := json.Unmarshal([]byte(content), &e.Content); err != nil {
			return nil, fmt.Errorf("decode outbox content %s: %w", e.ClientMsgID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IsNotFound reports whether err came from an update of a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
