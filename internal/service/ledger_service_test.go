package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitledger/splitledger/internal/calculator"
	"github.com/splitledger/splitledger/internal/currency"
	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
	"github.com/splitledger/splitledger/internal/storage/sqlite"
)

func newServices(t *testing.T) (*LedgerService, *GroupService) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	table := currency.DefaultTable()
	ledger := NewLedgerService(store, table, logger)
	groups := NewGroupService(store, table, ledger, logger)
	return ledger, groups
}

func newGroup(t *testing.T, ledger *LedgerService, groups *GroupService, memberIDs ...string) *models.Group {
	t.Helper()
	ctx := context.Background()
	for _, id := range memberIDs {
		require.NoError(t, ledger.store.CreateUser(ctx, &models.User{ID: id, Name: "user " + id}))
	}
	group, err := groups.CreateGroup(ctx, GroupSpec{Name: "trip", OwnerID: memberIDs[0], CurrencyCode: "RUB"})
	require.NoError(t, err)
	for _, id := range memberIDs[1:] {
		require.NoError(t, groups.AddMember(ctx, group.ID, memberIDs[0], id))
	}
	return group
}

func equalExpense(payer string, amount int64, participants ...string) TransactionSpec {
	spec := TransactionSpec{
		Kind:         models.KindExpense,
		Amount:       amount,
		CurrencyCode: "RUB",
		Date:         1000,
		PaidBy:       payer,
		SplitType:    models.SplitEqual,
	}
	for _, id := range participants {
		spec.Participants = append(spec.Participants, calculator.Participant{UserID: id})
	}
	return spec
}

func TestCreateExpenseEqualSplit(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob", "carol")

	// 100.00 RUB split equally three ways: 33.34 + 33.33 + 33.33.
	tx, err := ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 10000, "alice", "bob", "carol"))
	require.NoError(t, err)
	require.Len(t, tx.Shares, 3)

	lines, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.Equal(t, []calculator.BalanceLine{
		{Debtor: "bob", Creditor: "alice", Amount: 3333},
		{Debtor: "carol", Creditor: "alice", Amount: 3333},
	}, lines)
}

func TestTransferSettlesDebt(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")

	_, err := ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 10000, "alice", "bob"))
	require.NoError(t, err)

	lines, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	require.Equal(t, []calculator.BalanceLine{{Debtor: "bob", Creditor: "alice", Amount: 5000}}, lines)

	// Bob pays Alice back exactly what the suggestion says.
	suggestions, err := ledger.GetSettlementSuggestions(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	_, err = ledger.CreateTransaction(ctx, group.ID, "bob", TransactionSpec{
		Kind:         models.KindTransfer,
		Amount:       suggestions[0].Amount,
		CurrencyCode: "RUB",
		Date:         2000,
		TransferFrom: suggestions[0].Debtor,
		TransferTo:   []string{suggestions[0].Creditor},
	})
	require.NoError(t, err)

	lines, err = ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.Empty(t, lines, "executing the suggestion zeroes the balance")

	suggestions, err = ledger.GetSettlementSuggestions(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestEditTransactionRecomputesBalances(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")

	tx, err := ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 10000, "alice", "bob"))
	require.NoError(t, err)

	spec := equalExpense("bob", 4000, "alice", "bob")
	edited, err := ledger.EditTransaction(ctx, tx.ID, "alice", spec, tx.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(2), edited.Version)

	lines, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.Equal(t, []calculator.BalanceLine{{Debtor: "alice", Creditor: "bob", Amount: 2000}}, lines,
		"the old shares must not leak into balances")
}

func TestEditTransactionStaleVersion(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")

	tx, err := ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 10000, "alice", "bob"))
	require.NoError(t, err)

	_, err = ledger.EditTransaction(ctx, tx.ID, "alice", equalExpense("alice", 8000, "alice", "bob"), tx.Version)
	require.NoError(t, err)

	// A second writer holding the original version loses the race.
	_, err = ledger.EditTransaction(ctx, tx.ID, "alice", equalExpense("alice", 6000, "alice", "bob"), tx.Version)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	lines, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.Equal(t, []calculator.BalanceLine{{Debtor: "bob", Creditor: "alice", Amount: 4000}}, lines,
		"the losing write must leave no trace")
}

func TestCustomSplitMismatchPersistsNothing(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")

	_, err := ledger.CreateTransaction(ctx, group.ID, "alice", TransactionSpec{
		Kind:         models.KindExpense,
		Amount:       10000,
		CurrencyCode: "RUB",
		Date:         1000,
		PaidBy:       "alice",
		SplitType:    models.SplitCustom,
		Participants: []calculator.Participant{
			{UserID: "alice", Amount: 5000},
			{UserID: "bob", Amount: 4000},
		},
	})
	assert.ErrorIs(t, err, calculator.ErrAllocationMismatch)

	txs, err := ledger.ListTransactions(ctx, group.ID, true)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestDeleteTransactionKeepsAuditTrail(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")

	tx, err := ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 10000, "alice", "bob"))
	require.NoError(t, err)
	require.NoError(t, ledger.DeleteTransaction(ctx, tx.ID, "alice", tx.Version))

	lines, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.Empty(t, lines)

	visible, err := ledger.ListTransactions(ctx, group.ID, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	audit, err := ledger.ListTransactions(ctx, group.ID, true)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.True(t, audit[0].IsDeleted)
	assert.Len(t, audit[0].Shares, 2, "shares stay visible in the audit view")
}

func TestOnlyCreatorOrOwnerMayModify(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob", "carol")

	// Recorded by bob in alice's group.
	tx, err := ledger.CreateTransaction(ctx, group.ID, "bob", equalExpense("bob", 6000, "alice", "bob", "carol"))
	require.NoError(t, err)

	_, err = ledger.EditTransaction(ctx, tx.ID, "carol", equalExpense("bob", 3000, "alice", "bob"), tx.Version)
	assert.ErrorIs(t, err, ErrEditNotAllowed)

	err = ledger.DeleteTransaction(ctx, tx.ID, "carol", tx.Version)
	assert.ErrorIs(t, err, ErrEditNotAllowed)

	// Creator and owner both may.
	edited, err := ledger.EditTransaction(ctx, tx.ID, "bob", equalExpense("bob", 3000, "alice", "bob"), tx.Version)
	require.NoError(t, err)
	require.NoError(t, ledger.DeleteTransaction(ctx, tx.ID, "alice", edited.Version))
}

func TestPurgeTransaction(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")

	tx, err := ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 10000, "alice", "bob"))
	require.NoError(t, err)
	require.NoError(t, ledger.PurgeTransaction(ctx, tx.ID))

	audit, err := ledger.ListTransactions(ctx, group.ID, true)
	require.NoError(t, err)
	assert.Empty(t, audit, "purge removes even the audit trail")

	lines, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestArchivedGroupRejectsWrites(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")

	tx, err := ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 2000, "alice", "bob"))
	require.NoError(t, err)

	_, err = ledger.CreateTransaction(ctx, group.ID, "bob", TransactionSpec{
		Kind: models.KindTransfer, Amount: 400, CurrencyCode: "RUB", Date: 1500,
		TransferFrom: "bob", TransferTo: []string{"alice"},
	})
	require.NoError(t, err)
	require.NoError(t, groups.ArchiveGroup(ctx, group.ID, "alice"))

	_, err = ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 1000, "alice", "bob"))
	assert.ErrorIs(t, err, ErrGroupNotActive)

	_, err = ledger.EditTransaction(ctx, tx.ID, "alice", equalExpense("alice", 3000, "alice", "bob"), tx.Version)
	assert.ErrorIs(t, err, ErrGroupNotActive)

	err = ledger.DeleteTransaction(ctx, tx.ID, "alice", tx.Version)
	assert.ErrorIs(t, err, ErrGroupNotActive)

	// Reads keep working on archived groups.
	lines, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, lines)
}

func TestNonMemberRejected(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")
	require.NoError(t, ledger.store.CreateUser(ctx, &models.User{ID: "mallory", Name: "Mallory"}))

	_, err := ledger.CreateTransaction(ctx, group.ID, "mallory", equalExpense("mallory", 1000, "alice", "bob"))
	assert.ErrorIs(t, err, ErrNotGroupMember)

	_, err = ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("mallory", 1000, "alice", "bob"))
	assert.ErrorIs(t, err, ErrNotGroupMember, "a non-member payer is rejected")

	_, err = ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 1000, "alice", "mallory"))
	assert.ErrorIs(t, err, calculator.ErrInvalidParticipantSet, "a non-member participant is rejected")
}

func TestMultiCurrencyNormalization(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")

	_, err := ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 10000, "alice", "bob"))
	require.NoError(t, err)

	usd := equalExpense("bob", 1000, "alice", "bob")
	usd.CurrencyCode = "USD"
	_, err = ledger.CreateTransaction(ctx, group.ID, "bob", usd)
	require.NoError(t, err)

	rates := currency.StaticRates{"USD/RUB": decimal.RequireFromString("100")}
	lines, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", rates)
	require.NoError(t, err)
	// Bob owes 50.00 RUB; Alice owes 5.00 USD = 500.00 RUB. Net: Alice owes 450.00.
	assert.Equal(t, []calculator.BalanceLine{{Debtor: "alice", Creditor: "bob", Amount: 45000}}, lines)

	// Per-currency view keeps the debts apart.
	byCcy, err := ledger.BalancesByCurrency(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []calculator.BalanceLine{{Debtor: "bob", Creditor: "alice", Amount: 5000}}, byCcy["RUB"])
	assert.Equal(t, []calculator.BalanceLine{{Debtor: "alice", Creditor: "bob", Amount: 500}}, byCcy["USD"])

	// Without a rate the cross-currency view must fail loudly.
	_, err = ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	assert.ErrorIs(t, err, currency.ErrMissingRate)
}

func TestBalancesStableAcrossRecompute(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob", "carol")

	_, err := ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 10007, "alice", "bob", "carol"))
	require.NoError(t, err)
	_, err = ledger.CreateTransaction(ctx, group.ID, "bob", equalExpense("bob", 5003, "bob", "carol"))
	require.NoError(t, err)

	first, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)

	ledger.invalidate(group.ID)
	second, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second, "cached and recomputed balances must agree")
}

// stallingStore holds the first transaction listing after the query returns,
// so a write can commit between a reader's store query and its cache install.
type stallingStore struct {
	storage.Store
	listed  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallingStore) ListGroupTransactions(ctx context.Context, groupID string, includeDeleted bool) ([]*models.Transaction, error) {
	txs, err := s.Store.ListGroupTransactions(ctx, groupID, includeDeleted)
	s.once.Do(func() {
		close(s.listed)
		<-s.release
	})
	return txs, err
}

func TestCacheFillRacingWriteDoesNotStick(t *testing.T) {
	inner, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })
	store := &stallingStore{Store: inner, listed: make(chan struct{}), release: make(chan struct{})}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	table := currency.DefaultTable()
	ledger := NewLedgerService(store, table, logger)
	groups := NewGroupService(store, table, ledger, logger)

	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")
	_, err = ledger.CreateTransaction(ctx, group.ID, "alice", equalExpense("alice", 10000, "alice", "bob"))
	require.NoError(t, err)

	// A reader queries the store and stalls before installing its snapshot.
	read := make(chan error, 1)
	go func() {
		_, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
		read <- err
	}()
	<-store.listed

	// A write commits and invalidates while the reader is mid-fill.
	_, err = ledger.CreateTransaction(ctx, group.ID, "bob", equalExpense("bob", 4000, "alice", "bob"))
	require.NoError(t, err)
	close(store.release)
	require.NoError(t, <-read)

	// The reader's pre-write snapshot must not have become the cache: the
	// next read reflects both expenses, not just the first.
	lines, err := ledger.GetGroupBalances(ctx, group.ID, "RUB", nil)
	require.NoError(t, err)
	assert.Equal(t, []calculator.BalanceLine{{Debtor: "bob", Creditor: "alice", Amount: 3000}}, lines)
}

func TestCategoryAllowlist(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob")

	food := &models.ExpenseCategory{Key: "food", NameEN: "Food", NameRU: "Еда"}
	taxi := &models.ExpenseCategory{Key: "taxi", NameEN: "Taxi", NameRU: "Такси"}
	require.NoError(t, ledger.store.CreateCategory(ctx, food))
	require.NoError(t, ledger.store.CreateCategory(ctx, taxi))

	// No allowlist yet: any category goes.
	spec := equalExpense("alice", 1000, "alice", "bob")
	spec.CategoryID = taxi.ID
	_, err := ledger.CreateTransaction(ctx, group.ID, "alice", spec)
	require.NoError(t, err)

	require.NoError(t, ledger.store.AllowGroupCategory(ctx, group.ID, food.ID))

	spec = equalExpense("alice", 1000, "alice", "bob")
	spec.CategoryID = taxi.ID
	_, err = ledger.CreateTransaction(ctx, group.ID, "alice", spec)
	assert.ErrorIs(t, err, ErrCategoryNotAllowed)

	spec.CategoryID = food.ID
	_, err = ledger.CreateTransaction(ctx, group.ID, "alice", spec)
	require.NoError(t, err)
}

func TestTransferValidation(t *testing.T) {
	ledger, groups := newServices(t)
	ctx := context.Background()
	group := newGroup(t, ledger, groups, "alice", "bob", "carol")

	_, err := ledger.CreateTransaction(ctx, group.ID, "alice", TransactionSpec{
		Kind: models.KindTransfer, Amount: 1000, CurrencyCode: "RUB", Date: 1000,
		TransferFrom: "alice", TransferTo: []string{"alice", "bob"},
	})
	assert.ErrorIs(t, err, calculator.ErrInvalidParticipantSet, "sender among recipients is rejected")

	_, err = ledger.CreateTransaction(ctx, group.ID, "alice", TransactionSpec{
		Kind: models.KindTransfer, Amount: 1000, CurrencyCode: "RUB", Date: 1000,
		TransferFrom: "alice", TransferTo: nil,
	})
	assert.ErrorIs(t, err, calculator.ErrInvalidParticipantSet, "empty recipient set is rejected")

	// A multi-recipient transfer splits equally, remainder to the first
	// recipient by ascending user ID.
	tx, err := ledger.CreateTransaction(ctx, group.ID, "alice", TransactionSpec{
		Kind: models.KindTransfer, Amount: 1001, CurrencyCode: "RUB", Date: 1000,
		TransferFrom: "alice", TransferTo: []string{"carol", "bob"},
	})
	require.NoError(t, err)
	require.Len(t, tx.Shares, 2)
	assert.Equal(t, "bob", tx.Shares[0].UserID)
	assert.Equal(t, int64(501), tx.Shares[0].Amount)
	assert.Equal(t, "carol", tx.Shares[1].UserID)
	assert.Equal(t, int64(500), tx.Shares[1].Amount)
}
