// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"
	"errors"

	"github.com/splitledger/splitledger/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a versioned update finds the row
	// already changed by a concurrent writer. Callers retry with fresh state.
	ErrVersionConflict = errors.New("version conflict")
)

// Store defines the persistence operations of the ledger.
// The abstraction allows swapping storage backends (SQLite, PostgreSQL, ...)
// without changing the service layer.
type Store interface {
	// CreateUser persists a new user, generating ID and CreatedAt when unset.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// CreateGroup persists a new group and its owner membership atomically.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with its full membership list, including
	// soft-removed members. Soft-deleted groups are still returned; callers
	// decide how to treat them.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// SetGroupStatus transitions the group lifecycle status. archivedAt is
	// recorded on archive and cleared on unarchive.
	SetGroupStatus(ctx context.Context, groupID string, status models.GroupStatus, archivedAt int64) error

	// SetGroupDeleted soft-deletes or restores a group.
	SetGroupDeleted(ctx context.Context, groupID string, deletedAt int64) error

	// SetGroupCurrency changes the group's reporting currency code.
	SetGroupCurrency(ctx context.Context, groupID, code string) error

	// ListAutoArchiveCandidates returns active, non-deleted groups with
	// auto-archive enabled whose end date lies strictly before now.
	ListAutoArchiveCandidates(ctx context.Context, now int64) ([]*models.Group, error)

	// AddGroupMember inserts a membership or revives a soft-removed one.
	AddGroupMember(ctx context.Context, groupID, userID string, joinedAt int64) error

	// RemoveGroupMember soft-removes a membership.
	RemoveGroupMember(ctx context.Context, groupID, userID string, deletedAt int64) error

	// CreateCategory persists an expense category.
	CreateCategory(ctx context.Context, category *models.ExpenseCategory) error

	// ListCategories returns all expense categories.
	ListCategories(ctx context.Context) ([]*models.ExpenseCategory, error)

	// AllowGroupCategory adds a category to a group's allowlist.
	AllowGroupCategory(ctx context.Context, groupID, categoryID string) error

	// GroupCategoryIDs returns the group's category allowlist; an empty list
	// means every category is allowed.
	GroupCategoryIDs(ctx context.Context, groupID string) ([]string, error)

	// CreateTransaction persists a transaction and its shares as one unit.
	CreateTransaction(ctx context.Context, tx *models.Transaction) error

	// GetTransaction retrieves a transaction with all its shares, including
	// soft-invalidated ones.
	GetTransaction(ctx context.Context, txID string) (*models.Transaction, error)

	// UpdateTransaction rewrites a transaction row and replaces its live
	// shares in one unit: the row update is guarded by expectedVersion
	// (ErrVersionConflict on mismatch), old live shares are soft-invalidated,
	// and the new shares inserted. A reader never observes the row with no
	// live shares or with both generations live.
	UpdateTransaction(ctx context.Context, tx *models.Transaction, expectedVersion int64) error

	// SoftDeleteTransaction flags the transaction and its live shares as
	// deleted, guarded by expectedVersion.
	SoftDeleteTransaction(ctx context.Context, txID string, expectedVersion int64) error

	// PurgeTransaction physically removes a transaction; share rows go with
	// it via cascade. Data-cleanup path, not the normal flow.
	PurgeTransaction(ctx context.Context, txID string) error

	// ListGroupTransactions returns the group's transactions ordered by
	// (date, id) with shares attached. Soft-deleted transactions are
	// included only when includeDeleted is set.
	ListGroupTransactions(ctx context.Context, groupID string, includeDeleted bool) ([]*models.Transaction, error)

	// Close releases any resources held by the store.
	Close() error
}
