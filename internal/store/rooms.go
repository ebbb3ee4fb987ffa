package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/imsync/internal/model"
)

// SaveRooms replaces the cached room snapshot with rooms, keeping their order.
// Typing indicators are transient and not stored.
func (db *DB) SaveRooms(rooms []model.Room) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM rooms`); err != nil {
		return fmt.Errorf("clear rooms: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO rooms (group_id, conversation_id, name, ex, symbol, bg_color, status, create_time,
			unread_count, emails, members, last_message, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixMilli()
	for i, r := range rooms {
		members, err := json.Marshal(r.Members)
		if err != nil {
			return fmt.Errorf("encode members %s: %w", r.GroupID, err)
		}
		var last sql.NullString
		if r.LastMessage != nil {
			b, err := json.Marshal(r.LastMessage)
			if err != nil {
				return fmt.Errorf("encode last message %s: %w", r.GroupID, err)
			}
			last = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.Exec(r.GroupID, r.ConversationID, r.Name, r.Ex, r.Symbol, r.BgColor, string(r.Status),
			r.CreateTime, r.UnreadCount, r.Emails, string(members), last, i, now); err != nil {
			return fmt.Errorf("insert room %s: %w", r.GroupID, err)
		}
	}
	return tx.Commit()
}

// LoadRooms returns the cached room snapshot in saved order.
func (db *DB) LoadRooms() ([]model.Room, error) {
	rows, err := db.Query(`
		SELECT group_id, conversation_id, name, ex, symbol, bg_color, status, create_time,
			unread_count, emails, members, last_message
		FROM rooms ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rooms []model.Room
	for rows.Next() {
		var (
			r       model.Room
			status  string
			members string
			last    sql.NullString
		)
		if err := rows.Scan(&r.GroupID, &r.ConversationID, &r.Name, &r.Ex, &r.Symbol, &r.BgColor, &status,
			&r.CreateTime, &r.UnreadCount, &r.Emails, &members, &last); err != nil {
			return nil, err
		}
		r.Status = model.RoomStatus(status)
		if err := json.Unmarshal([]byte(members), &r.Members); err != nil {
			return nil, fmt.Errorf("decode members %s: %w", r.GroupID, err)
		}
		if last.Valid {
			var m model.Message
			if err := json.Unmarshal([]byte(last.String), &m); err != nil {
				return nil, fmt.Errorf("decode last message %s: %w", r.GroupID, err)
			}
			r.LastMessage = &m
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}
