package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nexthire/chatd/internal/models"
)

// SQLiteStore handles SQLite message persistence.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatd.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatd.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text',
		is_read INTEGER NOT NULL DEFAULT 0,
		read_at DATETIME,
		edited_at DATETIME,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, is_read);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append validates and persists a new message.
func (s *SQLiteStore) Append(ctx context.Context, sender, receiver uuid.UUID, content, kind string) (*models.Message, error) {
	content, kind, err := validateContent(content, kind)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, content, message_type, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sender.String(), receiver.String(), content, kind, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &models.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Kind:       kind,
		CreatedAt:  now,
	}, nil
}

// Thread returns one page of the message history between a and b,
// oldest-first. The page window selects newest messages first.
func (s *SQLiteStore) Thread(ctx context.Context, a, b uuid.UUID, page, pageSize int) ([]models.Message, error) {
	page, pageSize = clampPage(page, pageSize, DefaultThreadPageSize)
	offset := (page - 1) * pageSize

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, message_type, is_read, read_at, edited_at, is_deleted, created_at
		FROM messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		  AND is_deleted = 0
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, a.String(), b.String(), b.String(), a.String(), pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to oldest-first for the caller
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead marks the given messages as read by reader.
func (s *SQLiteStore) MarkRead(ctx context.Context, ids []int64, reader uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, time.Now().UTC(), reader.String())
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE messages SET is_read = 1, read_at = ?
		WHERE receiver_id = ? AND is_read = 0 AND id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	updated, _ := res.RowsAffected()
	return updated, nil
}

// MarkPeerRead marks every unread message from peer to reader.
func (s *SQLiteStore) MarkPeerRead(ctx context.Context, peer, reader uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1, read_at = ?
		WHERE sender_id = ? AND receiver_id = ? AND is_read = 0
	`, time.Now().UTC(), peer.String(), reader.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	updated, _ := res.RowsAffected()
	return updated, nil
}

// SoftDelete flags a message as deleted. Sender-only.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id int64, requester uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = 1
		WHERE id = ? AND sender_id = ?
	`, id, requester.String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnread counts non-deleted unread messages addressed to receiver.
func (s *SQLiteStore) CountUnread(ctx context.Context, receiver uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE receiver_id = ? AND is_read = 0 AND is_deleted = 0
	`, receiver.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// Conversations returns one page of the viewer's conversations, ordered
// by last message time descending.
func (s *SQLiteStore) Conversations(ctx context.Context, viewer uuid.UUID, page, pageSize int) ([]models.Conversation, error) {
	page, pageSize = clampPage(page, pageSize, DefaultConversationPageSize)
	offset := (page - 1) * pageSize
	v := viewer.String()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.sender_id, m.receiver_id, m.content, m.message_type,
		       m.is_read, m.read_at, m.edited_at, m.is_deleted, m.created_at,
		       t.peer_id,
		       (SELECT COUNT(*) FROM messages u
		        WHERE u.sender_id = t.peer_id AND u.receiver_id = ?
		          AND u.is_read = 0 AND u.is_deleted = 0) AS unread_count
		FROM (
			SELECT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS peer_id,
			       MAX(id) AS last_id
			FROM messages
			WHERE (sender_id = ? OR receiver_id = ?) AND is_deleted = 0
			GROUP BY peer_id
		) t
		JOIN messages m ON m.id = t.last_id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?
	`, v, v, v, v, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var (
			msg        models.Message
			senderID   string
			receiverID string
			peerID     string
			unread     int
		)
		err := rows.Scan(
			&msg.ID, &senderID, &receiverID, &msg.Content, &msg.Kind,
			&msg.Read, &msg.ReadAt, &msg.EditedAt, &msg.Deleted, &msg.CreatedAt,
			&peerID, &unread,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if msg.SenderID, err = uuid.Parse(senderID); err != nil {
			continue
		}
		if msg.ReceiverID, err = uuid.Parse(receiverID); err != nil {
			continue
		}
		peer, err := uuid.Parse(peerID)
		if err != nil {
			continue
		}
		conversations = append(conversations, models.Conversation{
			PeerID:      peer,
			LastMessage: &msg,
			UnreadCount: unread,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return conversations, nil
}

// scanMessages reads message rows produced by the standard column list.
func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var (
			msg        models.Message
			senderID   string
			receiverID string
		)
		err := rows.Scan(
			&msg.ID, &senderID, &receiverID, &msg.Content, &msg.Kind,
			&msg.Read, &msg.ReadAt, &msg.EditedAt, &msg.Deleted, &msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if msg.SenderID, err = uuid.Parse(senderID); err != nil {
			continue
		}
		if msg.ReceiverID, err = uuid.Parse(receiverID); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return messages, nil
}
