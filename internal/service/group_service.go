package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/splitledger/splitledger/internal/currency"
	"github.com/splitledger/splitledger/internal/metrics"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

var (
	// ErrNotOwner is returned when a lifecycle operation is attempted by a
	// member other than the group owner.
	ErrNotOwner = errors.New("only the group owner may do this")

	// ErrUnsettledBalance is returned when an operation requires zero debts
	// but some remain.
	ErrUnsettledBalance = errors.New("unsettled balances remain")

	// ErrOwnerCannotLeave is returned when the owner tries to leave their own
	// group.
	ErrOwnerCannotLeave = errors.New("owner cannot leave the group")
)

// GroupSpec describes a new group.
type GroupSpec struct {
	Name         string
	OwnerID      string
	CurrencyCode string

	// EndDate plus AutoArchive opt the group into the periodic archive sweep.
	EndDate     int64
	AutoArchive bool
}

// GroupService owns group lifecycle and membership rules. Debt checks go
// through the ledger service so they see the same cached aggregation state
// as balance reads.
type GroupService struct {
	store      storage.Store
	currencies *currency.Table
	ledger     *LedgerService
	logger     *slog.Logger
}

// NewGroupService creates a GroupService.
func NewGroupService(store storage.Store, currencies *currency.Table, ledger *LedgerService, logger *slog.Logger) *GroupService {
	return &GroupService{store: store, currencies: currencies, ledger: ledger, logger: logger}
}

// CreateGroup creates a group with the owner as its first member.
func (s *GroupService) CreateGroup(ctx context.Context, spec GroupSpec) (*models.Group, error) {
	if _, err := s.currencies.Get(spec.CurrencyCode); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, spec.OwnerID); err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:         spec.Name,
		OwnerID:      spec.OwnerID,
		CurrencyCode: spec.CurrencyCode,
		EndDate:      spec.EndDate,
		AutoArchive:  spec.AutoArchive,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	s.logger.Info("group created", "group_id", group.ID, "owner_id", spec.OwnerID, "currency", spec.CurrencyCode)
	return group, nil
}

// GetGroup returns the group with its membership list.
func (s *GroupService) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return s.store.GetGroup(ctx, groupID)
}

// ArchiveGroup closes the group to ledger writes. Owner only.
func (s *GroupService) ArchiveGroup(ctx context.Context, groupID, actorID string) error {
	group, err := s.ownedGroup(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if group.Status == models.GroupArchived {
		return nil
	}
	if err := s.store.SetGroupStatus(ctx, groupID, models.GroupArchived, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to archive group: %w", err)
	}
	s.logger.Info("group archived", "group_id", groupID, "actor_id", actorID)
	return nil
}

// UnarchiveGroup reopens an archived group. Owner only.
func (s *GroupService) UnarchiveGroup(ctx context.Context, groupID, actorID string) error {
	group, err := s.ownedGroup(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if group.Status == models.GroupActive {
		return nil
	}
	if err := s.store.SetGroupStatus(ctx, groupID, models.GroupActive, 0); err != nil {
		return fmt.Errorf("failed to unarchive group: %w", err)
	}
	s.logger.Info("group unarchived", "group_id", groupID, "actor_id", actorID)
	return nil
}

// DeleteGroup soft-deletes the group. Owner only, and every balance must be
// settled first.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID, actorID string) error {
	if _, err := s.ownedGroup(ctx, groupID, actorID); err != nil {
		return err
	}
	hasDebts, err := s.ledger.HasDebts(ctx, groupID)
	if err != nil {
		return err
	}
	if hasDebts {
		return fmt.Errorf("group %s: %w", groupID, ErrUnsettledBalance)
	}
	if err := s.store.SetGroupDeleted(ctx, groupID, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	s.logger.Info("group deleted", "group_id", groupID, "actor_id", actorID)
	return nil
}

// SetReportingCurrency changes the group's reporting currency. Owner only.
// Recorded transactions keep their original currencies.
func (s *GroupService) SetReportingCurrency(ctx context.Context, groupID, actorID, code string) error {
	if _, err := s.currencies.Get(code); err != nil {
		return err
	}
	if _, err := s.ownedGroup(ctx, groupID, actorID); err != nil {
		return err
	}
	if err := s.store.SetGroupCurrency(ctx, groupID, code); err != nil {
		return fmt.Errorf("failed to set group currency: %w", err)
	}
	s.logger.Info("group currency changed", "group_id", groupID, "currency", code)
	return nil
}

// AddMember adds a user to the group, or revives a previously removed
// membership. Any active member may invite.
func (s *GroupService) AddMember(ctx context.Context, groupID, actorID, userID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsActive() {
		return fmt.Errorf("group %s: %w", groupID, ErrGroupNotActive)
	}
	if !group.IsActiveMember(actorID) {
		return fmt.Errorf("user %s: %w", actorID, ErrNotGroupMember)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.store.AddGroupMember(ctx, groupID, userID, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	s.logger.Info("member added", "group_id", groupID, "user_id", userID, "actor_id", actorID)
	return nil
}

// RemoveMember removes a member from the group. Owner only, and the member's
// net position must be zero in every currency. Their past shares stay in the
// ledger history.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, actorID, userID string) error {
	group, err := s.ownedGroup(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if userID == group.OwnerID {
		return fmt.Errorf("user %s: %w", userID, ErrOwnerCannotLeave)
	}
	return s.removeSettledMember(ctx, groupID, userID)
}

// LeaveGroup removes the caller's own membership, provided their balances
// are settled. The owner cannot leave.
func (s *GroupService) LeaveGroup(ctx context.Context, groupID, userID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if userID == group.OwnerID {
		return fmt.Errorf("user %s: %w", userID, ErrOwnerCannotLeave)
	}
	if !group.IsActiveMember(userID) {
		return fmt.Errorf("user %s: %w", userID, ErrNotGroupMember)
	}
	return s.removeSettledMember(ctx, groupID, userID)
}

func (s *GroupService) removeSettledMember(ctx context.Context, groupID, userID string) error {
	hasDebts, err := s.ledger.MemberHasDebts(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if hasDebts {
		return fmt.Errorf("user %s: %w", userID, ErrUnsettledBalance)
	}
	if err := s.store.RemoveGroupMember(ctx, groupID, userID, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	s.logger.Info("member removed", "group_id", groupID, "user_id", userID)
	return nil
}

// AutoArchiveOnce archives every group whose end date has passed, that opted
// into auto-archiving, and whose balances are fully settled. Groups with
// remaining debts are skipped and picked up by a later sweep. Returns the
// number of groups archived.
func (s *GroupService) AutoArchiveOnce(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.store.ListAutoArchiveCandidates(ctx, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to list auto-archive candidates: %w", err)
	}

	archived := 0
	for _, group := range candidates {
		hasDebts, err := s.ledger.HasDebts(ctx, group.ID)
		if err != nil {
			s.logger.Error("auto-archive debt check failed", "group_id", group.ID, "error", err)
			continue
		}
		if hasDebts {
			s.logger.Debug("auto-archive skipped, debts remain", "group_id", group.ID)
			continue
		}
		if err := s.store.SetGroupStatus(ctx, group.ID, models.GroupArchived, now.Unix()); err != nil {
			s.logger.Error("auto-archive failed", "group_id", group.ID, "error", err)
			continue
		}
		metrics.GroupsAutoArchived.Inc()
		s.logger.Info("group auto-archived", "group_id", group.ID)
		archived++
	}
	return archived, nil
}

// AutoArchiveLoop runs the archive sweep on a fixed interval until the
// context is cancelled.
func (s *GroupService) AutoArchiveLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("auto-archive loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auto-archive loop stopped")
			return
		case now := <-ticker.C:
			if _, err := s.AutoArchiveOnce(ctx, now); err != nil {
				s.logger.Error("auto-archive sweep failed", "error", err)
			}
		}
	}
}

// ownedGroup loads the group and checks the actor is its owner.
func (s *GroupService) ownedGroup(ctx context.Context, groupID, actorID string) (*models.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.DeletedAt != 0 {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if group.OwnerID != actorID {
		return nil, fmt.Errorf("user %s: %w", actorID, ErrNotOwner)
	}
	return group, nil
}
