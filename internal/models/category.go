package models

// ExpenseCategory is a label for expenses (groceries, transport, ...).
// A group may restrict expenses to a subset of categories through its
// category allowlist; an empty allowlist permits every category.
type ExpenseCategory struct {
	// ID is the unique identifier for the category (UUID format).
	ID string `json:"id"`

	// Key is a stable machine name, e.g. "groceries".
	Key string `json:"key"`

	// NameEN and NameRU are display names.
	NameEN string `json:"name_en"`
	NameRU string `json:"name_ru"`

	// Icon is an optional emoji or icon name for clients.
	Icon string `json:"icon,omitempty"`
}
