package models

// TransactionKind discriminates ledger entries.
type TransactionKind string

const (
	KindExpense  TransactionKind = "expense"
	KindTransfer TransactionKind = "transfer"
)

// SplitType is the policy used to divide an expense among participants.
type SplitType string

const (
	SplitEqual  SplitType = "equal"
	SplitShares SplitType = "shares"
	SplitCustom SplitType = "custom"
)

// Transaction is a single ledger entry: an expense paid by one member on
// behalf of several, or a transfer between a sender and one or more
// recipients.
//
// Edits re-derive all shares and bump Version; concurrent writers racing on
// the same row are detected through the version check. Deletion sets
// IsDeleted and leaves every foreign key intact.
type Transaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string `json:"id"`

	// GroupID is the group this transaction belongs to. Never empty.
	GroupID string `json:"group_id"`

	// CreatedBy is the user who recorded the transaction. Must be a live
	// member of the group.
	CreatedBy string `json:"created_by"`

	// Kind is expense or transfer.
	Kind TransactionKind `json:"kind"`

	// Amount is the transaction total in minor units of CurrencyCode.
	Amount int64 `json:"amount"`

	// CurrencyCode is the ISO 4217 code the amount was recorded in. It must
	// exist in the currency reference table and is stored unchanged even when
	// balances are reported in another currency.
	CurrencyCode string `json:"currency_code"`

	// Date is the Unix timestamp of the expense or transfer.
	Date int64 `json:"date"`

	// Comment is an optional free-form description.
	Comment string `json:"comment,omitempty"`

	// CategoryID is the optional expense category (expenses only).
	CategoryID string `json:"category_id,omitempty"`

	// PaidBy is the paying member (expenses only).
	PaidBy string `json:"paid_by,omitempty"`

	// SplitType is the share derivation policy (expenses only).
	SplitType SplitType `json:"split_type,omitempty"`

	// TransferFrom is the sending member (transfers only).
	TransferFrom string `json:"transfer_from,omitempty"`

	// TransferTo lists the recipient members (transfers only). Persisted as a
	// JSON array; the authoritative per-recipient amounts live in Shares.
	TransferTo []string `json:"transfer_to,omitempty"`

	// Version counts committed writes to this row, starting at 1. Writers
	// must present the version they read; a mismatch means a concurrent edit
	// won the race.
	Version int64 `json:"version"`

	// IsDeleted is the soft-delete flag. Deleted transactions are excluded
	// from aggregation but remain queryable in the audit view.
	IsDeleted bool `json:"is_deleted,omitempty"`

	// CreatedAt and UpdatedAt are Unix timestamps maintained by storage.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	// Shares holds the per-participant allocation, including soft-invalidated
	// rows from earlier edits.
	Shares []TransactionShare `json:"shares"`
}

// TransactionShare is one participant's slice of a transaction: the amount
// the participant owes (expense) or receives (transfer), unique per
// (transaction, user) among live rows.
type TransactionShare struct {
	// ID is the unique identifier for the share row (UUID format).
	ID string `json:"id"`

	// TransactionID is the owning transaction.
	TransactionID string `json:"transaction_id"`

	// UserID is the participant.
	UserID string `json:"user_id"`

	// Amount is the participant's slice in minor units of the transaction
	// currency. Live shares of a transaction always sum exactly to Amount.
	Amount int64 `json:"amount"`

	// Weight is the positive shares weight when SplitType is "shares", zero
	// otherwise.
	Weight int64 `json:"weight,omitempty"`

	// IsDeleted marks shares invalidated by an edit or by soft-deleting the
	// transaction. Invalidated shares stay for the audit view.
	IsDeleted bool `json:"is_deleted,omitempty"`
}

// LiveShares returns the shares that currently count toward balances.
func (t *Transaction) LiveShares() []TransactionShare {
	live := make([]TransactionShare, 0, len(t.Shares))
	for _, s := range t.Shares {
		if !s.IsDeleted {
			live = append(live, s)
		}
	}
	return live
}

// Counterparty returns the member the live shares are owed to: the payer for
// an expense, the sender for a transfer.
func (t *Transaction) Counterparty() string {
	if t.Kind == KindTransfer {
		return t.TransferFrom
	}
	return t.PaidBy
}
