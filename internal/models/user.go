package models

// User represents a registered user of the ledger.
//
// Identity and session handling live outside this system; callers pass an
// already-authenticated user ID into every operation.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// Name is the display name of the user.
	Name string `json:"name"`

	// CreatedAt is the Unix timestamp when the user was created.
	CreatedAt int64 `json:"created_at"`
}
