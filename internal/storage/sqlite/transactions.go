package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/models"
	"github.com/splitledger/splitledger/internal/storage"
)

// CreateTransaction persists a transaction and its shares as one unit.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if tx.CreatedAt == 0 {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	if tx.Version == 0 {
		tx.Version = 1
	}

	transferTo, err := marshalTransferTo(tx.TransferTo)
	if err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, group_id, created_by, kind, amount, currency_code, date, comment, category_id,
		  paid_by, split_type, transfer_from, transfer_to, version, is_deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		tx.ID, tx.GroupID, tx.CreatedBy, string(tx.Kind), tx.Amount, tx.CurrencyCode,
		tx.Date, tx.Comment, nullable(tx.CategoryID), nullable(tx.PaidBy),
		nullable(string(tx.SplitType)), nullable(tx.TransferFrom), transferTo,
		tx.Version, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for i := range tx.Shares {
		if err := insertShare(ctx, dbTx, tx.ID, &tx.Shares[i]); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction with all its shares.
func (s *SQLiteStore) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT id, group_id, created_by, kind, amount, currency_code, date, comment,
		        category_id, paid_by, split_type, transfer_from, transfer_to,
		        version, is_deleted, created_at, updated_at
		 FROM transactions WHERE id = ?`,
		txID,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	shares, err := s.transactionShares(ctx, txID)
	if err != nil {
		return nil, err
	}
	tx.Shares = shares
	return tx, nil
}

// UpdateTransaction rewrites a transaction row and replaces its live shares
// in one unit, guarded by expectedVersion.
func (s *SQLiteStore) UpdateTransaction(ctx context.Context, tx *models.Transaction, expectedVersion int64) error {
	transferTo, err := marshalTransferTo(tx.TransferTo)
	if err != nil {
		return err
	}
	tx.UpdatedAt = time.Now().Unix()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx,
		`UPDATE transactions SET
		   kind = ?, amount = ?, currency_code = ?, date = ?, comment = ?, category_id = ?,
		   paid_by = ?, split_type = ?, transfer_from = ?, transfer_to = ?,
		   version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND is_deleted = 0`,
		string(tx.Kind), tx.Amount, tx.CurrencyCode, tx.Date, tx.Comment,
		nullable(tx.CategoryID), nullable(tx.PaidBy), nullable(string(tx.SplitType)),
		nullable(tx.TransferFrom), transferTo, tx.UpdatedAt,
		tx.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// Either the row is gone or someone else committed first.
		var current int64
		err := dbTx.QueryRowContext(ctx,
			"SELECT version FROM transactions WHERE id = ? AND is_deleted = 0", tx.ID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("transaction %s: %w", tx.ID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check transaction version: %w", err)
		}
		return fmt.Errorf("transaction %s at version %d, expected %d: %w",
			tx.ID, current, expectedVersion, storage.ErrVersionConflict)
	}

	_, err = dbTx.ExecContext(ctx,
		"UPDATE transaction_shares SET is_deleted = 1 WHERE transaction_id = ? AND is_deleted = 0",
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to invalidate old shares: %w", err)
	}

	for i := range tx.Shares {
		if tx.Shares[i].IsDeleted {
			continue
		}
		tx.Shares[i].ID = ""
		if err := insertShare(ctx, dbTx, tx.ID, &tx.Shares[i]); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction update: %w", err)
	}
	tx.Version = expectedVersion + 1
	return nil
}

// SoftDeleteTransaction flags the transaction and its live shares as deleted,
// guarded by expectedVersion.
func (s *SQLiteStore) SoftDeleteTransaction(ctx context.Context, txID string, expectedVersion int64) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx,
		`UPDATE transactions SET is_deleted = 1, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND is_deleted = 0`,
		time.Now().Unix(), txID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to soft-delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := dbTx.QueryRowContext(ctx,
			"SELECT 1 FROM transactions WHERE id = ? AND is_deleted = 0", txID,
		).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check transaction: %w", err)
		}
		return fmt.Errorf("transaction %s: %w", txID, storage.ErrVersionConflict)
	}

	_, err = dbTx.ExecContext(ctx,
		"UPDATE transaction_shares SET is_deleted = 1 WHERE transaction_id = ? AND is_deleted = 0",
		txID,
	)
	if err != nil {
		return fmt.Errorf("failed to invalidate shares: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit soft delete: %w", err)
	}
	return nil
}

// PurgeTransaction physically removes a transaction and its shares.
func (s *SQLiteStore) PurgeTransaction(ctx context.Context, txID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", txID)
	if err != nil {
		return fmt.Errorf("failed to purge transaction: %w", err)
	}
	return requireRow(res, txID)
}

// ListGroupTransactions returns the group's transactions ordered by
// (date, id) with shares attached.
func (s *SQLiteStore) ListGroupTransactions(ctx context.Context, groupID string, includeDeleted bool) ([]*models.Transaction, error) {
	query := `SELECT id, group_id, created_by, kind, amount, currency_code, date, comment,
	                 category_id, paid_by, split_type, transfer_from, transfer_to,
	                 version, is_deleted, created_at, updated_at
	          FROM transactions WHERE group_id = ?`
	if !includeDeleted {
		query += " AND is_deleted = 0"
	}
	query += " ORDER BY date, id"

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	byID := make(map[string]*models.Transaction)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
		byID[tx.ID] = tx
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	if len(txs) == 0 {
		return txs, nil
	}

	// One pass over the group's shares instead of a query per transaction.
	shareRows, err := s.db.QueryContext(ctx,
		`SELECT ts.id, ts.transaction_id, ts.user_id, ts.amount, ts.weight, ts.is_deleted
		 FROM transaction_shares ts
		 JOIN transactions t ON t.id = ts.transaction_id
		 WHERE t.group_id = ?
		 ORDER BY ts.transaction_id, ts.user_id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer shareRows.Close()

	for shareRows.Next() {
		var sh models.TransactionShare
		var isDeleted int
		if err := shareRows.Scan(&sh.ID, &sh.TransactionID, &sh.UserID, &sh.Amount, &sh.Weight, &isDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		sh.IsDeleted = isDeleted != 0
		if tx, ok := byID[sh.TransactionID]; ok {
			tx.Shares = append(tx.Shares, sh)
		}
	}
	if err := shareRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shares: %w", err)
	}
	return txs, nil
}

func (s *SQLiteStore) transactionShares(ctx context.Context, txID string) ([]models.TransactionShare, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transaction_id, user_id, amount, weight, is_deleted
		 FROM transaction_shares WHERE transaction_id = ? ORDER BY user_id, id`,
		txID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get shares: %w", err)
	}
	defer rows.Close()

	var shares []models.TransactionShare
	for rows.Next() {
		var sh models.TransactionShare
		var isDeleted int
		if err := rows.Scan(&sh.ID, &sh.TransactionID, &sh.UserID, &sh.Amount, &sh.Weight, &isDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		sh.IsDeleted = isDeleted != 0
		shares = append(shares, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shares: %w", err)
	}
	return shares, nil
}

func insertShare(ctx context.Context, dbTx *sql.Tx, txID string, sh *models.TransactionShare) error {
	if sh.ID == "" {
		sh.ID = uuid.New().String()
	}
	sh.TransactionID = txID
	_, err := dbTx.ExecContext(ctx,
		"INSERT INTO transaction_shares (id, transaction_id, user_id, amount, weight, is_deleted) VALUES (?, ?, ?, ?, ?, ?)",
		sh.ID, sh.TransactionID, sh.UserID, sh.Amount, sh.Weight, boolToInt(sh.IsDeleted),
	)
	if err != nil {
		return fmt.Errorf("failed to insert share: %w", err)
	}
	return nil
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	tx := &models.Transaction{}
	var kind, splitType string
	var categoryID, paidBy, transferFrom, transferTo sql.NullString
	var splitTypeNull sql.NullString
	var isDeleted int
	err := row.Scan(&tx.ID, &tx.GroupID, &tx.CreatedBy, &kind, &tx.Amount, &tx.CurrencyCode,
		&tx.Date, &tx.Comment, &categoryID, &paidBy, &splitTypeNull, &transferFrom,
		&transferTo, &tx.Version, &isDeleted, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	tx.Kind = models.TransactionKind(kind)
	tx.CategoryID = categoryID.String
	tx.PaidBy = paidBy.String
	if splitTypeNull.Valid {
		splitType = splitTypeNull.String
	}
	tx.SplitType = models.SplitType(splitType)
	tx.TransferFrom = transferFrom.String
	tx.IsDeleted = isDeleted != 0

	if transferTo.Valid && transferTo.String != "" {
		if err := json.Unmarshal([]byte(transferTo.String), &tx.TransferTo); err != nil {
			return nil, fmt.Errorf("failed to decode transfer recipients: %w", err)
		}
	}
	return tx, nil
}

func marshalTransferTo(recipients []string) (any, error) {
	if len(recipients) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(recipients)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer recipients: %w", err)
	}
	return string(data), nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
