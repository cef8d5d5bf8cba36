package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/deba607/AbJee-Travel-sub001/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Insert(ctx context.Context, roomID, senderID, content, msgType string, replyTo *string) (*model.Message, error) {
	var m model.Message
	m.RoomID = roomID
	m.SenderID = senderID
	m.Content = content
	m.Type = msgType
	m.ReplyToID = replyTo
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages (room_id, sender_id, content, type, reply_to_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, roomID, senderID, content, msgType, replyTo).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &m, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	var sender model.UserRef
	err := r.pool.QueryRow(ctx, `
		SELECT m.id, m.room_id, m.sender_id, m.content, m.type, m.reply_to_id,
		       m.edited, m.edited_at, m.deleted, m.deleted_at,
		       m.moderated, m.moderated_by, m.moderation_reason, m.pinned, m.created_at,
		       u.username, u.display_name
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`, id).Scan(
		&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.Type, &m.ReplyToID,
		&m.Edited, &m.EditedAt, &m.Deleted, &m.DeletedAt,
		&m.Moderated, &m.ModeratedBy, &m.ModerationReason, &m.Pinned, &m.CreatedAt,
		&sender.Username, &sender.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sender.ID = m.SenderID
	m.Sender = &sender
	return &m, nil
}

// RecentWindow returns the newest non-deleted messages of a room in
// chronological order, reactions included.
func (r *MessageRepository) RecentWindow(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.room_id, m.sender_id, m.content, m.type, m.reply_to_id,
		       m.edited, m.edited_at, m.moderated, m.moderated_by, m.moderation_reason,
		       m.pinned, m.created_at, u.username, u.display_name
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1 AND m.deleted = FALSE
		ORDER BY m.created_at DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var sender model.UserRef
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.Type, &m.ReplyToID,
			&m.Edited, &m.EditedAt, &m.Moderated, &m.ModeratedBy, &m.ModerationReason,
			&m.Pinned, &m.CreatedAt, &sender.Username, &sender.DisplayName); err != nil {
			return nil, err
		}
		sender.ID = m.SenderID
		m.Sender = &sender
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse for chronological order (oldest first)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if err := r.attachReactions(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepository) attachReactions(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	index := make(map[string]int, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		index[msgs[i].ID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT message_id, user_id, emoji, reacted_at
		FROM message_reactions WHERE message_id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var re model.Reaction
		if err := rows.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.ReactedAt); err != nil {
			return err
		}
		if i, ok := index[re.MessageID]; ok {
			msgs[i].Reactions = append(msgs[i].Reactions, re)
		}
	}
	return rows.Err()
}

// SoftDelete replaces the content with the placeholder and flags the row.
// The row stays behind for replies and reports. Returns false if the message
// was already deleted or does not exist.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET deleted = TRUE, deleted_at = NOW(), content = $2
		WHERE id = $1 AND deleted = FALSE
	`, id, model.DeletedPlaceholder)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *MessageRepository) Moderate(ctx context.Context, id, moderatorID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET moderated = TRUE, moderated_by = $2, moderation_reason = $3, moderated_at = NOW()
		WHERE id = $1
	`, id, moderatorID, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TogglePin flips the pin flag and reports the new state.
func (r *MessageRepository) TogglePin(ctx context.Context, id string) (bool, error) {
	var pinned bool
	err := r.pool.QueryRow(ctx, `
		UPDATE messages SET pinned = NOT pinned WHERE id = $1 RETURNING pinned
	`, id).Scan(&pinned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return pinned, nil
}

// UpsertReaction stores at most one reaction per (message, user); a new emoji
// replaces the previous one.
func (r *MessageRepository) UpsertReaction(ctx context.Context, messageID, userID, emoji string) (*model.Reaction, error) {
	var re model.Reaction
	err := r.pool.QueryRow(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET emoji = EXCLUDED.emoji, reacted_at = NOW()
		RETURNING message_id, user_id, emoji, reacted_at
	`, messageID, userID, emoji).Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.ReactedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert reaction: %w", err)
	}
	return &re, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, messageID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_reads (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID, userID)
	return err
}

func (r *MessageRepository) InsertReport(ctx context.Context, messageID, roomID, reporterID, reason, description string) (*model.Report, error) {
	var rep model.Report
	rep.MessageID = messageID
	rep.RoomID = roomID
	rep.ReporterID = reporterID
	rep.Reason = reason
	rep.Description = description
	err := r.pool.QueryRow(ctx, `
		INSERT INTO message_reports (message_id, room_id, reporter_id, reason, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, messageID, roomID, reporterID, reason, description).Scan(&rep.ID, &rep.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return &rep, nil
}
