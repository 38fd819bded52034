// Package service implements the ledger's business logic on top of the
// storage and calculator layers: validation, balance caching, settlement
// suggestions, and group lifecycle rules.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/splitledger/splitledger/internal/calculator"
	"github.com/splitledger/splitledger/internal/currency"
	"github.com/splitledger/splitledger/internal/metrics"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

var (
	// ErrGroupNotActive is returned for ledger writes against an archived or
	// deleted group.
	ErrGroupNotActive = errors.New("group is not active")

	// ErrNotGroupMember is returned when a party of a transaction has no live
	// membership in the group.
	ErrNotGroupMember = errors.New("not a group member")

	// ErrConcurrentModification is returned when a write presented a stale
	// version. The caller should re-read and retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrCategoryNotAllowed is returned when an expense names a category
	// outside the group's allowlist.
	ErrCategoryNotAllowed = errors.New("category not allowed in group")

	// ErrEditNotAllowed is returned when someone other than the transaction's
	// creator or the group owner tries to modify it.
	ErrEditNotAllowed = errors.New("only the creator or group owner may modify a transaction")
)

// TransactionSpec is the caller-facing description of a ledger write. Shares
// are always derived from it server-side; clients never submit share rows
// directly.
type TransactionSpec struct {
	Kind         models.TransactionKind
	Amount       int64
	CurrencyCode string
	Date         int64
	Comment      string

	// Expense fields.
	CategoryID   string
	PaidBy       string
	SplitType    models.SplitType
	Participants []calculator.Participant

	// Transfer fields. The amount is divided equally among the recipients.
	TransferFrom string
	TransferTo   []string
}

// ledgerEntry is one cached transaction reduced to what aggregation needs,
// still in its recorded currency.
type ledgerEntry struct {
	currency string
	entry    calculator.Entry
}

// LedgerService owns transaction writes and balance reads for groups.
//
// Balances are recomputed from the full live transaction set and cached per
// group in recorded currencies; any write to a group drops its cache entry.
// The cache is never patched incrementally, so a cached read and a fresh
// recomputation can never disagree.
type LedgerService struct {
	store      storage.Store
	currencies *currency.Table
	logger     *slog.Logger

	mu    sync.RWMutex
	cache map[string][]ledgerEntry
	// gen counts invalidations per group. A fill captured before a write's
	// invalidation must not be installed after it, or the cache would keep
	// serving the pre-write snapshot.
	gen map[string]uint64
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(store storage.Store, currencies *currency.Table, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:      store,
		currencies: currencies,
		logger:     logger,
		cache:      make(map[string][]ledgerEntry),
		gen:        make(map[string]uint64),
	}
}

// CreateTransaction validates and records a new expense or transfer, deriving
// its shares from the spec.
func (s *LedgerService) CreateTransaction(ctx context.Context, groupID, createdBy string, spec TransactionSpec) (*models.Transaction, error) {
	s.logger.Info("creating transaction", "group_id", groupID, "created_by", createdBy, "kind", spec.Kind, "amount", spec.Amount)

	group, err := s.writableGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsActiveMember(createdBy) {
		return nil, fmt.Errorf("user %s: %w", createdBy, ErrNotGroupMember)
	}

	tx, err := s.buildTransaction(ctx, group, spec)
	if err != nil {
		return nil, err
	}
	tx.CreatedBy = createdBy

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.invalidate(groupID)
	metrics.TransactionsWritten.WithLabelValues("create").Inc()
	s.logger.Info("transaction created", "transaction_id", tx.ID, "group_id", groupID)
	return tx, nil
}

// EditTransaction replaces a transaction's content with a freshly validated
// spec. expectedVersion is the version the caller read; a mismatch yields
// ErrConcurrentModification and changes nothing.
func (s *LedgerService) EditTransaction(ctx context.Context, txID, actorID string, spec TransactionSpec, expectedVersion int64) (*models.Transaction, error) {
	s.logger.Info("editing transaction", "transaction_id", txID, "actor_id", actorID, "expected_version", expectedVersion)

	existing, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	group, err := s.writableGroup(ctx, existing.GroupID)
	if err != nil {
		return nil, err
	}
	if err := canModify(existing, group, actorID); err != nil {
		return nil, err
	}

	tx, err := s.buildTransaction(ctx, group, spec)
	if err != nil {
		return nil, err
	}
	tx.ID = existing.ID
	tx.CreatedBy = existing.CreatedBy
	tx.CreatedAt = existing.CreatedAt

	if err := s.store.UpdateTransaction(ctx, tx, expectedVersion); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			metrics.WriteConflicts.Inc()
			s.logger.Warn("edit lost version race", "transaction_id", txID, "expected_version", expectedVersion)
			return nil, fmt.Errorf("transaction %s: %w", txID, ErrConcurrentModification)
		}
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	s.invalidate(group.ID)
	metrics.TransactionsWritten.WithLabelValues("edit").Inc()
	return tx, nil
}

// DeleteTransaction soft-deletes a transaction, removing it from balances
// while keeping it in the audit view.
func (s *LedgerService) DeleteTransaction(ctx context.Context, txID, actorID string, expectedVersion int64) error {
	s.logger.Info("deleting transaction", "transaction_id", txID, "actor_id", actorID)

	existing, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	group, err := s.writableGroup(ctx, existing.GroupID)
	if err != nil {
		return err
	}
	if err := canModify(existing, group, actorID); err != nil {
		return err
	}

	if err := s.store.SoftDeleteTransaction(ctx, txID, expectedVersion); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			metrics.WriteConflicts.Inc()
			return fmt.Errorf("transaction %s: %w", txID, ErrConcurrentModification)
		}
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	s.invalidate(existing.GroupID)
	metrics.TransactionsWritten.WithLabelValues("delete").Inc()
	return nil
}

// PurgeTransaction physically removes a transaction and its shares. Unlike
// the normal delete it also erases the audit trail; meant for data cleanup.
func (s *LedgerService) PurgeTransaction(ctx context.Context, txID string) error {
	existing, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if err := s.store.PurgeTransaction(ctx, txID); err != nil {
		return fmt.Errorf("failed to purge transaction: %w", err)
	}
	s.invalidate(existing.GroupID)
	s.logger.Info("transaction purged", "transaction_id", txID, "group_id", existing.GroupID)
	return nil
}

// ListTransactions returns the group's transactions ordered by date. With
// includeDeleted set, soft-deleted entries appear too (the audit view).
func (s *LedgerService) ListTransactions(ctx context.Context, groupID string, includeDeleted bool) ([]*models.Transaction, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListGroupTransactions(ctx, groupID, includeDeleted)
}

// GetGroupBalances reports who owes whom, with every share normalized into
// reportingCurrency using the supplied rates before aggregation.
func (s *LedgerService) GetGroupBalances(ctx context.Context, groupID, reportingCurrency string, rates currency.RateProvider) ([]calculator.BalanceLine, error) {
	nets, err := s.reportingNets(ctx, groupID, reportingCurrency, rates)
	if err != nil {
		return nil, err
	}
	return calculator.BalanceLines(nets), nil
}

// GetSettlementSuggestions reduces the group's balances to a minimal transfer
// list in reportingCurrency. Executing a suggestion means recording a real
// transfer from debtor to creditor, which zeroes the pair through the normal
// write path.
func (s *LedgerService) GetSettlementSuggestions(ctx context.Context, groupID, reportingCurrency string, rates currency.RateProvider) ([]calculator.Settlement, error) {
	nets, err := s.reportingNets(ctx, groupID, reportingCurrency, rates)
	if err != nil {
		return nil, err
	}
	settlements, err := calculator.Settle(calculator.NetPositions(nets))
	if err != nil {
		s.logger.Error("settlement failed invariant check", "group_id", groupID, "error", err)
		return nil, err
	}
	return settlements, nil
}

// BalancesByCurrency reports pairwise balances per recorded currency, with no
// cross-currency netting and no rates required.
func (s *LedgerService) BalancesByCurrency(ctx context.Context, groupID string) (map[string][]calculator.BalanceLine, error) {
	byCurrency, err := s.netsByCurrency(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]calculator.BalanceLine, len(byCurrency))
	for code, nets := range byCurrency {
		out[code] = calculator.BalanceLines(nets)
	}
	return out, nil
}

// MemberNets returns each member's net position per recorded currency:
// positive means owed, negative means owing.
func (s *LedgerService) MemberNets(ctx context.Context, groupID string) (map[string]map[string]int64, error) {
	byCurrency, err := s.netsByCurrency(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]int64, len(byCurrency))
	for code, nets := range byCurrency {
		positions := calculator.NetPositions(nets)
		if len(positions) > 0 {
			out[code] = positions
		}
	}
	return out, nil
}

// HasDebts reports whether any nonzero pairwise debt remains in any currency.
func (s *LedgerService) HasDebts(ctx context.Context, groupID string) (bool, error) {
	byCurrency, err := s.netsByCurrency(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, nets := range byCurrency {
		if len(nets) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// MemberHasDebts reports whether the user has a nonzero net position in any
// currency, which blocks leaving or being removed from the group.
func (s *LedgerService) MemberHasDebts(ctx context.Context, groupID, userID string) (bool, error) {
	nets, err := s.MemberNets(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, positions := range nets {
		if positions[userID] != 0 {
			return true, nil
		}
	}
	return false, nil
}

// canModify allows the transaction's creator and the group owner.
func canModify(tx *models.Transaction, group *models.Group, actorID string) error {
	if actorID == tx.CreatedBy || actorID == group.OwnerID {
		return nil
	}
	return fmt.Errorf("user %s: %w", actorID, ErrEditNotAllowed)
}

// writableGroup loads the group and rejects archived or deleted ones.
func (s *LedgerService) writableGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsActive() {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrGroupNotActive)
	}
	return group, nil
}

// buildTransaction validates the spec against the group and derives shares.
func (s *LedgerService) buildTransaction(ctx context.Context, group *models.Group, spec TransactionSpec) (*models.Transaction, error) {
	if _, err := s.currencies.Get(spec.CurrencyCode); err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		GroupID:      group.ID,
		Kind:         spec.Kind,
		Amount:       spec.Amount,
		CurrencyCode: spec.CurrencyCode,
		Date:         spec.Date,
		Comment:      spec.Comment,
	}

	switch spec.Kind {
	case models.KindExpense:
		if !group.IsActiveMember(spec.PaidBy) {
			return nil, fmt.Errorf("payer %s: %w", spec.PaidBy, ErrNotGroupMember)
		}
		for _, p := range spec.Participants {
			if !group.IsActiveMember(p.UserID) {
				return nil, fmt.Errorf("%w: participant %s is not a group member", calculator.ErrInvalidParticipantSet, p.UserID)
			}
		}
		if err := s.checkCategory(ctx, group.ID, spec.CategoryID); err != nil {
			return nil, err
		}
		allocations, err := calculator.Allocate(spec.Amount, calculator.SplitType(spec.SplitType), spec.Participants)
		if err != nil {
			return nil, err
		}
		tx.CategoryID = spec.CategoryID
		tx.PaidBy = spec.PaidBy
		tx.SplitType = spec.SplitType
		tx.Shares = sharesFromAllocations(allocations)

	case models.KindTransfer:
		if !group.IsActiveMember(spec.TransferFrom) {
			return nil, fmt.Errorf("sender %s: %w", spec.TransferFrom, ErrNotGroupMember)
		}
		participants := make([]calculator.Participant, 0, len(spec.TransferTo))
		for _, id := range spec.TransferTo {
			if id == spec.TransferFrom {
				return nil, fmt.Errorf("%w: sender %s among recipients", calculator.ErrInvalidParticipantSet, id)
			}
			if !group.IsActiveMember(id) {
				return nil, fmt.Errorf("%w: recipient %s is not a group member", calculator.ErrInvalidParticipantSet, id)
			}
			participants = append(participants, calculator.Participant{UserID: id})
		}
		allocations, err := calculator.Allocate(spec.Amount, calculator.SplitEqual, participants)
		if err != nil {
			return nil, err
		}
		tx.TransferFrom = spec.TransferFrom
		tx.TransferTo = spec.TransferTo
		tx.Shares = sharesFromAllocations(allocations)

	default:
		return nil, fmt.Errorf("unknown transaction kind %q", spec.Kind)
	}
	return tx, nil
}

func (s *LedgerService) checkCategory(ctx context.Context, groupID, categoryID string) error {
	if categoryID == "" {
		return nil
	}
	allowed, err := s.store.GroupCategoryIDs(ctx, groupID)
	if err != nil {
		return err
	}
	// An empty allowlist means every category is allowed.
	if len(allowed) == 0 {
		return nil
	}
	for _, id := range allowed {
		if id == categoryID {
			return nil
		}
	}
	return fmt.Errorf("category %s: %w", categoryID, ErrCategoryNotAllowed)
}

func sharesFromAllocations(allocations []calculator.Allocation) []models.TransactionShare {
	shares := make([]models.TransactionShare, len(allocations))
	for i, a := range allocations {
		shares[i] = models.TransactionShare{UserID: a.UserID, Amount: a.Amount, Weight: a.Weight}
	}
	return shares
}

// loadEntries returns the group's live transactions reduced to aggregation
// entries in their recorded currencies, from cache when possible.
func (s *LedgerService) loadEntries(ctx context.Context, groupID string) ([]ledgerEntry, error) {
	s.mu.RLock()
	cached, ok := s.cache[groupID]
	gen := s.gen[groupID]
	s.mu.RUnlock()
	if ok {
		metrics.BalanceCacheHits.Inc()
		return cached, nil
	}

	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	txs, err := s.store.ListGroupTransactions(ctx, groupID, false)
	if err != nil {
		return nil, err
	}

	entries := make([]ledgerEntry, 0, len(txs))
	for _, tx := range txs {
		entry := calculator.Entry{
			Kind:           calculator.EntryKind(tx.Kind),
			CounterpartyID: tx.Counterparty(),
		}
		for _, sh := range tx.LiveShares() {
			entry.Shares = append(entry.Shares, calculator.Allocation{UserID: sh.UserID, Amount: sh.Amount})
		}
		entries = append(entries, ledgerEntry{currency: tx.CurrencyCode, entry: entry})
	}

	metrics.BalanceRecomputes.Inc()
	s.mu.Lock()
	// A write may have committed and invalidated while we were reading; the
	// snapshot is still fine for this caller but must not become the cache.
	if s.gen[groupID] == gen {
		s.cache[groupID] = entries
	}
	s.mu.Unlock()
	s.logger.Debug("balance entries recomputed", "group_id", groupID, "transactions", len(txs))
	return entries, nil
}

// reportingNets aggregates the group into pairwise nets in reportingCurrency,
// normalizing each share individually before aggregation.
func (s *LedgerService) reportingNets(ctx context.Context, groupID, reportingCurrency string, rates currency.RateProvider) (map[calculator.Pair]int64, error) {
	target, err := s.currencies.Get(reportingCurrency)
	if err != nil {
		return nil, err
	}
	entries, err := s.loadEntries(ctx, groupID)
	if err != nil {
		return nil, err
	}

	normalizer := currency.NewNormalizer(s.currencies, rates)
	normalized := make([]calculator.Entry, 0, len(entries))
	for _, le := range entries {
		entry := calculator.Entry{Kind: le.entry.Kind, CounterpartyID: le.entry.CounterpartyID}
		for _, sh := range le.entry.Shares {
			amount, err := normalizer.Normalize(sh.Amount, le.currency, target.Code)
			if err != nil {
				return nil, err
			}
			entry.Shares = append(entry.Shares, calculator.Allocation{UserID: sh.UserID, Amount: amount})
		}
		normalized = append(normalized, entry)
	}
	return calculator.AggregateBalances(normalized), nil
}

// netsByCurrency aggregates the group per recorded currency, no conversion.
func (s *LedgerService) netsByCurrency(ctx context.Context, groupID string) (map[string]map[calculator.Pair]int64, error) {
	entries, err := s.loadEntries(ctx, groupID)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]calculator.Entry)
	for _, le := range entries {
		grouped[le.currency] = append(grouped[le.currency], le.entry)
	}

	out := make(map[string]map[calculator.Pair]int64, len(grouped))
	for code, group := range grouped {
		nets := calculator.AggregateBalances(group)
		if len(nets) > 0 {
			out[code] = nets
		}
	}
	return out, nil
}

// invalidate drops the group's cached entries after any ledger write and
// bumps the generation so an in-flight fill cannot reinstall them.
func (s *LedgerService) invalidate(groupID string) {
	s.mu.Lock()
	s.gen[groupID]++
	if _, ok := s.cache[groupID]; ok {
		delete(s.cache, groupID)
		metrics.BalanceCacheInvalidations.Inc()
	}
	s.mu.Unlock()
}
