package domain

import "context"

// Transaction exposes the record operations a persistence implementation must
// support within an atomic scope. Nothing done through a Transaction is visible
// outside it until the enclosing RunInTransaction returns without error.
type Transaction interface {
	Snapshot() TransactionView
	FindUser(id string) (User, bool)
	// CreateUser inserts a record, generating an id when none is set. It fails
	// with ErrAlreadyExists when the id is taken.
	CreateUser(User) (User, error)
	// PutUser writes the record under its id, creating or replacing it.
	PutUser(User) (User, error)
	// UpdateUser mutates an existing record; ErrNotFound when missing.
	UpdateUser(id string, mutator func(*User) error) (User, error)
	// DeleteUser removes a record and reports whether it existed.
	DeleteUser(id string) (bool, error)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetUser(id string) (User, bool)
	ListUsers() []User
}
