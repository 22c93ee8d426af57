// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. Durable drivers wrap it and
// attach a commit hook that runs before a transaction's state becomes visible.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"usergrid/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// User aliases domain.User for in-memory persistence operations.
	User = domain.User
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	users map[string]User
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Users map[string]User `json:"users"`
}

// CommitFunc receives the state a transaction is about to publish along with
// the changes that produced it. Returning an error aborts the transaction and
// leaves the visible state untouched.
type CommitFunc func(ctx context.Context, next Snapshot, changes []Change) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs fn as the durable commit step.
func WithCommitHook(fn CommitFunc) Option {
	return func(s *Store) { s.commit = fn }
}

// WithIDGenerator overrides the id generator used for records created without an id.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func newMemoryState() memoryState {
	return memoryState{users: make(map[string]User)}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{Users: make(map[string]User, len(state.users))}
	for k, v := range state.users {
		s.Users[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Users {
		v.LocalKey = ""
		if v.ID == "" {
			v.ID = k
		}
		state.users[k] = v
	}
	return state
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(Snapshot{Users: s.users})
}

// Store is an in-memory implementation of the domain persistent store.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	commit CommitFunc
	newID  func() string
}

// NewStore constructs an in-memory store.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. The commit
// hook is not invoked.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListUsers returns all users within the snapshot ordered by id.
func (v transactionView) ListUsers() []User {
	return sortedUsers(v.state.users)
}

// FindUser looks a user up by id.
func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

func sortedUsers(users map[string]User) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunInTransaction applies fn to a private copy of the state. The rules engine
// and then the commit hook run against the result; the copy replaces the
// visible state only when both succeed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commit != nil && len(tx.changes) > 0 {
		if err := s.commit(ctx, snapshotFromMemoryState(tx.state), tx.changes); err != nil {
			return result, fmt.Errorf("commit: %w", err)
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// GetUser retrieves a user from committed state.
func (s *Store) GetUser(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	return u, ok
}

// ListUsers returns all committed users ordered by id.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedUsers(s.state.users)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindUser exposes user lookup within the transaction scope.
func (tx *transaction) FindUser(id string) (User, bool) {
	u, ok := tx.state.users[id]
	return u, ok
}

// CreateUser stores a new user, generating an id when none is supplied.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = tx.store.newID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, domain.ErrAlreadyExists{Entity: domain.EntityUser, ID: u.ID}
	}
	u.LocalKey = ""
	tx.state.users[u.ID] = u
	after := u
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: &after})
	return u, nil
}

// PutUser writes u under its id, replacing any existing record.
func (tx *transaction) PutUser(u User) (User, error) {
	if u.ID == "" {
		return User{}, fmt.Errorf("put user: empty id")
	}
	u.LocalKey = ""
	current, exists := tx.state.users[u.ID]
	tx.state.users[u.ID] = u
	after := u
	if exists {
		before := current
		tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: &before, After: &after})
	} else {
		tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: &after})
	}
	return u, nil
}

// UpdateUser mutates an existing user using the provided mutator function.
func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.ErrNotFound{Entity: domain.EntityUser, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.LocalKey = ""
	tx.state.users[id] = current
	after := current
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: &before, After: &after})
	return current, nil
}

// DeleteUser removes a user and reports whether it existed.
func (tx *transaction) DeleteUser(id string) (bool, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return false, nil
	}
	delete(tx.state.users, id)
	before := current
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionDelete, Before: &before})
	return true, nil
}

// Delta resolves changes against the state they produced: records to write and
// ids to remove, each listed once in first-touched order.
func (s Snapshot) Delta(changes []Change) (upserts []User, deletes []string) {
	seen := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		key := c.Key()
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		if u, ok := s.Users[key]; ok {
			upserts = append(upserts, u)
		} else {
			deletes = append(deletes, key)
		}
	}
	return upserts, deletes
}
