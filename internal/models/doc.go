// Package models defines the core domain entities of the ledger.
//
// The ledger is append-mostly: transactions and their shares are soft-deleted
// via flags and never destroyed outside an explicit purge, so the full history
// stays queryable and balances can always be recomputed from scratch.
//
// All monetary amounts are int64 values in minor units of their currency
// (kopecks, cents); the currency's decimal precision defines the scale.
// Floating point never touches ledger money.
//
// Relationships are expressed with ID strings instead of pointers to avoid
// circular references between entities.
package models
