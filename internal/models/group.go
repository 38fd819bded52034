package models

// GroupStatus is the lifecycle state of a group.
type GroupStatus string

const (
	GroupActive   GroupStatus = "active"
	GroupArchived GroupStatus = "archived"
)

// Group represents a set of users sharing expenses.
//
// Archiving and deletion are status transitions, never physical deletes:
// transactions keep referencing the group for as long as they exist.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Roommates", "Trip to Baku").
	Name string `json:"name"`

	// OwnerID is the user who created the group. Only the owner may archive,
	// delete, or change the reporting currency of the group.
	OwnerID string `json:"owner_id"`

	// Status is active or archived. Archived groups reject all ledger writes.
	Status GroupStatus `json:"status"`

	// CurrencyCode is the group's reporting currency (ISO 4217). Transactions
	// in other currencies are normalized into it for aggregation only.
	CurrencyCode string `json:"currency_code"`

	// EndDate is an optional Unix timestamp after which the group is eligible
	// for auto-archiving. Zero means no end date.
	EndDate int64 `json:"end_date,omitempty"`

	// AutoArchive marks the group for the periodic auto-archive sweep once
	// EndDate has passed and no debts remain.
	AutoArchive bool `json:"auto_archive,omitempty"`

	// ArchivedAt is the Unix timestamp of the archive transition, zero if active.
	ArchivedAt int64 `json:"archived_at,omitempty"`

	// DeletedAt is the soft-delete timestamp; nonzero means the group is hidden.
	DeletedAt int64 `json:"deleted_at,omitempty"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"created_at"`

	// Members is the group's membership list, including soft-removed entries.
	Members []GroupMember `json:"members"`
}

// GroupMember is the membership of a user in a group, unique per (group, user).
// Presence of a live membership makes the user eligible as a split participant,
// payer, or transfer party.
type GroupMember struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`

	// JoinedAt is the Unix timestamp when the user joined.
	JoinedAt int64 `json:"joined_at"`

	// DeletedAt is the soft-removal timestamp; zero means the membership is live.
	DeletedAt int64 `json:"deleted_at,omitempty"`
}

// ActiveMemberIDs returns the user IDs of live memberships.
func (g *Group) ActiveMemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m.DeletedAt == 0 {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// IsActiveMember reports whether the user has a live membership in the group.
func (g *Group) IsActiveMember(userID string) bool {
	for _, m := range g.Members {
		if m.UserID == userID && m.DeletedAt == 0 {
			return true
		}
	}
	return false
}

// IsActive reports whether the group accepts ledger writes.
func (g *Group) IsActive() bool {
	return g.Status == GroupActive && g.DeletedAt == 0
}
