package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexthire/chatd/internal/models"
)

// PostgresStore handles PostgreSQL message persistence.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		sender_id UUID NOT NULL,
		receiver_id UUID NOT NULL,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at TIMESTAMPTZ,
		edited_at TIMESTAMPTZ,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, is_read);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append validates and persists a new message.
func (s *PostgresStore) Append(ctx context.Context, sender, receiver uuid.UUID, content, kind string) (*models.Message, error) {
	content, kind, err := validateContent(content, kind)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Kind:       kind,
	}

	now := time.Now().UTC()
	err = s.pool.QueryRow(ctx, `
		INSERT INTO messages (sender_id, receiver_id, content, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, sender, receiver, content, kind, now).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return msg, nil
}

// Thread returns one page of the message history between a and b,
// oldest-first. The page window selects newest messages first.
func (s *PostgresStore) Thread(ctx context.Context, a, b uuid.UUID, page, pageSize int) ([]models.Message, error) {
	page, pageSize = clampPage(page, pageSize, DefaultThreadPageSize)
	offset := (page - 1) * pageSize

	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, receiver_id, content, message_type, is_read, read_at, edited_at, is_deleted, created_at
		FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND is_deleted = FALSE
		ORDER BY id DESC
		LIMIT $3 OFFSET $4
	`, a, b, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Kind,
			&msg.Read, &msg.ReadAt, &msg.EditedAt, &msg.Deleted, &msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead marks the given messages as read by reader.
func (s *PostgresStore) MarkRead(ctx context.Context, ids []int64, reader uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = $1
		WHERE receiver_id = $2 AND is_read = FALSE AND id = ANY($3)
	`, time.Now().UTC(), reader, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// MarkPeerRead marks every unread message from peer to reader.
func (s *PostgresStore) MarkPeerRead(ctx context.Context, peer, reader uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = $1
		WHERE sender_id = $2 AND receiver_id = $3 AND is_read = FALSE
	`, time.Now().UTC(), peer, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// SoftDelete flags a message as deleted. Sender-only.
func (s *PostgresStore) SoftDelete(ctx context.Context, id int64, requester uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_deleted = TRUE
		WHERE id = $1 AND sender_id = $2
	`, id, requester)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnread counts non-deleted unread messages addressed to receiver.
func (s *PostgresStore) CountUnread(ctx context.Context, receiver uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE receiver_id = $1 AND is_read = FALSE AND is_deleted = FALSE
	`, receiver).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// Conversations returns one page of the viewer's conversations, ordered
// by last message time descending.
func (s *PostgresStore) Conversations(ctx context.Context, viewer uuid.UUID, page, pageSize int) ([]models.Conversation, error) {
	page, pageSize = clampPage(page, pageSize, DefaultConversationPageSize)
	offset := (page - 1) * pageSize

	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.sender_id, m.receiver_id, m.content, m.message_type,
		       m.is_read, m.read_at, m.edited_at, m.is_deleted, m.created_at,
		       t.peer_id,
		       (SELECT COUNT(*) FROM messages u
		        WHERE u.sender_id = t.peer_id AND u.receiver_id = $1
		          AND u.is_read = FALSE AND u.is_deleted = FALSE) AS unread_count
		FROM (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer_id,
			       MAX(id) AS last_id
			FROM messages
			WHERE (sender_id = $1 OR receiver_id = $1) AND is_deleted = FALSE
			GROUP BY peer_id
		) t
		JOIN messages m ON m.id = t.last_id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3
	`, viewer, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var (
			msg    models.Message
			peerID uuid.UUID
			unread int
		)
		err := rows.Scan(
			&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Kind,
			&msg.Read, &msg.ReadAt, &msg.EditedAt, &msg.Deleted, &msg.CreatedAt,
			&peerID, &unread,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		conversations = append(conversations, models.Conversation{
			PeerID:      peerID,
			LastMessage: &msg,
			UnreadCount: unread,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return conversations, nil
}
