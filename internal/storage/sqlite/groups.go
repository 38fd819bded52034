package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

// CreateGroup persists a new group and its owner membership atomically.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	if group.Status == "" {
		group.Status = models.GroupActive
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO groups (id, name, owner_id, status, currency_code, end_date, auto_archive, archived_at, deleted_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.OwnerID, string(group.Status), group.CurrencyCode,
		group.EndDate, boolToInt(group.AutoArchive), group.ArchivedAt, group.DeletedAt, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	_, err = dbTx.ExecContext(ctx,
		"INSERT INTO group_members (group_id, user_id, joined_at, deleted_at) VALUES (?, ?, ?, 0)",
		group.ID, group.OwnerID, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert owner membership: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group: %w", err)
	}

	group.Members = []models.GroupMember{{
		GroupID:  group.ID,
		UserID:   group.OwnerID,
		JoinedAt: group.CreatedAt,
	}}
	return nil
}

// GetGroup retrieves a group with its full membership list.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	var status string
	var autoArchive int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, status, currency_code, end_date, auto_archive, archived_at, deleted_at, created_at
		 FROM groups WHERE id = ?`,
		groupID,
	).Scan(&group.ID, &group.Name, &group.OwnerID, &status, &group.CurrencyCode,
		&group.EndDate, &autoArchive, &group.ArchivedAt, &group.DeletedAt, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	group.Status = models.GroupStatus(status)
	group.AutoArchive = autoArchive != 0

	members, err := s.groupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	group.Members = members
	return group, nil
}

func (s *SQLiteStore) groupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT group_id, user_id, joined_at, deleted_at FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	var members []models.GroupMember
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.JoinedAt, &m.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}
	return members, nil
}

// SetGroupStatus transitions the group lifecycle status.
func (s *SQLiteStore) SetGroupStatus(ctx context.Context, groupID string, status models.GroupStatus, archivedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE groups SET status = ?, archived_at = ? WHERE id = ?",
		string(status), archivedAt, groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group status: %w", err)
	}
	return requireRow(res, groupID)
}

// SetGroupDeleted soft-deletes or restores a group.
func (s *SQLiteStore) SetGroupDeleted(ctx context.Context, groupID string, deletedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE groups SET deleted_at = ? WHERE id = ?",
		deletedAt, groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group deletion: %w", err)
	}
	return requireRow(res, groupID)
}

// SetGroupCurrency changes the group's reporting currency code.
func (s *SQLiteStore) SetGroupCurrency(ctx context.Context, groupID, code string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE groups SET currency_code = ? WHERE id = ?",
		code, groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group currency: %w", err)
	}
	return requireRow(res, groupID)
}

// ListAutoArchiveCandidates returns active, non-deleted groups with
// auto-archive enabled whose end date lies strictly before now.
func (s *SQLiteStore) ListAutoArchiveCandidates(ctx context.Context, now int64) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM groups
		 WHERE status = ? AND deleted_at = 0 AND auto_archive = 1 AND end_date > 0 AND end_date < ?
		 ORDER BY end_date`,
		string(models.GroupActive), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-archive candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// AddGroupMember inserts a membership or revives a soft-removed one.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, userID string, joinedAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at, deleted_at)
		 VALUES (?, ?, ?, 0)
		 ON CONFLICT (group_id, user_id) DO UPDATE SET deleted_at = 0`,
		groupID, userID, joinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveGroupMember soft-removes a membership.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, userID string, deletedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE group_members SET deleted_at = ? WHERE group_id = ? AND user_id = ? AND deleted_at = 0",
		deletedAt, groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return requireRow(res, userID)
}

// requireRow maps a zero-row UPDATE to ErrNotFound.
func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	return nil
}
