package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deba607/AbJee-Travel-sub001/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func (r *RoomRepository) Create(ctx context.Context, name, roomType string, maxMembers int, createdBy string) (*model.Room, error) {
	var room model.Room
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rooms (name, type, max_members, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, type, max_members, message_count, last_activity_at, created_by, created_at
	`, name, roomType, maxMembers, createdBy).Scan(
		&room.ID, &room.Name, &room.Type, &room.MaxMembers, &room.MessageCount,
		&room.LastActivityAt, &room.CreatedBy, &room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return &room, nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	err := r.pool.QueryRow(ctx, `
		SELECT r.id, r.name, r.type, r.max_members, r.message_count, r.last_activity_at,
		       r.created_by, r.created_at,
		       (SELECT COUNT(*) FROM room_members m WHERE m.room_id = r.id)
		FROM rooms r WHERE r.id = $1
	`, id).Scan(
		&room.ID, &room.Name, &room.Type, &room.MaxMembers, &room.MessageCount,
		&room.LastActivityAt, &room.CreatedBy, &room.CreatedAt, &room.MemberCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// List returns a page of rooms of the given type (all types when empty),
// most recently active first, plus the total count for pagination.
func (r *RoomRepository) List(ctx context.Context, roomType string, page, limit int) ([]model.Room, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int
	var rows pgx.Rows
	var err error
	if roomType == "" {
		if err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = r.pool.Query(ctx, `
			SELECT r.id, r.name, r.type, r.max_members, r.message_count, r.last_activity_at,
			       r.created_by, r.created_at,
			       (SELECT COUNT(*) FROM room_members m WHERE m.room_id = r.id)
			FROM rooms r
			ORDER BY r.last_activity_at DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
	} else {
		if err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms WHERE type = $1`, roomType).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = r.pool.Query(ctx, `
			SELECT r.id, r.name, r.type, r.max_members, r.message_count, r.last_activity_at,
			       r.created_by, r.created_at,
			       (SELECT COUNT(*) FROM room_members m WHERE m.room_id = r.id)
			FROM rooms r WHERE r.type = $1
			ORDER BY r.last_activity_at DESC
			LIMIT $2 OFFSET $3
		`, roomType, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(
			&room.ID, &room.Name, &room.Type, &room.MaxMembers, &room.MessageCount,
			&room.LastActivityAt, &room.CreatedBy, &room.CreatedAt, &room.MemberCount); err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, room)
	}
	return rooms, total, rows.Err()
}

func (r *RoomRepository) GetMember(ctx context.Context, roomID, userID string) (*model.RoomMember, error) {
	var m model.RoomMember
	err := r.pool.QueryRow(ctx, `
		SELECT room_id, user_id, role, joined_at, last_read_at
		FROM room_members WHERE room_id = $1 AND user_id = $2
	`, roomID, userID).Scan(&m.RoomID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *RoomRepository) IsBanned(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM room_bans WHERE room_id = $1 AND user_id = $2)
	`, roomID, userID).Scan(&exists)
	return exists, err
}

// AddMember inserts a membership only while the room is below capacity.
// The count guard and the insert run in a single statement so two concurrent
// joins cannot both squeeze past the limit; the primary key absorbs duplicate
// joins. Returns whether a row was actually inserted.
func (r *RoomRepository) AddMember(ctx context.Context, roomID, userID, role string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO room_members (room_id, user_id, role)
		SELECT $1, $2, $3
		WHERE (SELECT COUNT(*) FROM room_members WHERE room_id = $1)
		      < (SELECT max_members FROM rooms WHERE id = $1)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, roomID, userID, role)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RoomRepository) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM room_members WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RoomRepository) SetMemberRole(ctx context.Context, roomID, userID, role string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE room_members SET role = $3 WHERE room_id = $1 AND user_id = $2
	`, roomID, userID, role)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Ban removes the membership and records the ban in one transaction so a
// banned user is never simultaneously a member.
func (r *RoomRepository) Ban(ctx context.Context, roomID, userID, bannedBy, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM room_members WHERE room_id = $1 AND user_id = $2
	`, roomID, userID); err != nil {
		return fmt.Errorf("ban: remove membership: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO room_bans (room_id, user_id, banned_by, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, roomID, userID, bannedBy, reason); err != nil {
		return fmt.Errorf("ban: record ban: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *RoomRepository) Unban(ctx context.Context, roomID, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM room_bans WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordMessage bumps the room's message counter and activity stamp as a
// single atomic increment, never a read-modify-write.
func (r *RoomRepository) RecordMessage(ctx context.Context, roomID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET message_count = message_count + 1, last_activity_at = NOW() WHERE id = $1
	`, roomID)
	return err
}

func (r *RoomRepository) TouchLastRead(ctx context.Context, roomID, userID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE room_members SET last_read_at = $3 WHERE room_id = $1 AND user_id = $2
	`, roomID, userID, at)
	return err
}

// ModeratorIDs lists users holding moderator or admin in the room.
func (r *RoomRepository) ModeratorIDs(ctx context.Context, roomID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM room_members WHERE room_id = $1 AND role IN ('moderator', 'admin')
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RoomRepository) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&n)
	return n, err
}
