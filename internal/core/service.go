package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"usergrid/internal/infra/persistence/memory"
	"usergrid/pkg/domain"
)

// Operation names reported to the logger and metrics recorder.
const (
	OpBulkUpsert = "bulk_upsert"
	OpListUsers  = "list_users"
	OpGetUser    = "get_user"
	OpCreateUser = "create_user"
	OpUpdateUser = "update_user"
	OpDeleteUser = "delete_user"
	OpSeed       = "seed"
)

// Service exposes transactional operations over the user collection.
type Service struct {
	store   PersistentStore
	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger routes service logs to logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a recorder observing every operation.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithClock overrides the clock used to time operations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the id generator used by CreateUser and Seed.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) finish(ctx context.Context, op string, started time.Time, res Result, err error) {
	s.metrics.Observe(ctx, op, err == nil, s.now().Sub(started))
	for _, v := range res.Warnings() {
		s.logger.Warnw("rule warning", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
	}
	if err != nil {
		s.logger.Debugw("operation failed", "operation", op, "error", err.Error())
	}
}

// BatchResult summarizes a committed bulk upsert.
type BatchResult struct {
	Created int
	Updated int
	// Users holds the stored records in request order.
	Users []User
}

// BulkUpsert applies every item inside one transaction. Items addressed by id
// are merged into the stored record; items addressed by a local key are written
// whole under that key, which becomes their id. Either all items are committed
// or none is.
func (s *Service) BulkUpsert(ctx context.Context, items []BatchItem) (batch BatchResult, res Result, err error) {
	started := s.now()
	defer func() { s.finish(ctx, OpBulkUpsert, started, res, err) }()

	if len(items) == 0 {
		return BatchResult{}, Result{}, domain.Malformed("expected a non-empty array of users")
	}
	for i, item := range items {
		if !item.Identity().Valid() {
			return BatchResult{}, Result{}, domain.Malformed("item %d has neither id nor localKey", i)
		}
	}

	var out BatchResult
	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		out = BatchResult{Users: make([]User, 0, len(items))}
		for i, item := range items {
			stored, created, err := applyItem(tx, item)
			if err != nil {
				return errors.Wrapf(err, "item %d (%s)", i, item.Identity())
			}
			if created {
				out.Created++
			} else {
				out.Updated++
			}
			out.Users = append(out.Users, stored)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, res, errors.Wrap(err, "bulk upsert")
	}
	s.logger.Infow("bulk upsert committed", "created", out.Created, "updated", out.Updated)
	return out, res, nil
}

func applyItem(tx Transaction, item BatchItem) (User, bool, error) {
	id := item.Identity()
	if id.IsPersisted() {
		u, err := tx.UpdateUser(id.WriteKey(), func(u *User) error {
			item.Apply(u)
			return nil
		})
		return u, false, err
	}
	_, existed := tx.FindUser(id.WriteKey())
	u := User{ID: id.WriteKey()}
	item.Apply(&u)
	stored, err := tx.PutUser(u)
	return stored, !existed, err
}

// ListUsers returns every stored record ordered by id.
func (s *Service) ListUsers(ctx context.Context) (users []User, err error) {
	started := s.now()
	defer func() { s.finish(ctx, OpListUsers, started, Result{}, err) }()
	err = s.store.View(ctx, func(view TransactionView) error {
		users = view.ListUsers()
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

// GetUser returns the record stored under id.
func (s *Service) GetUser(ctx context.Context, id string) (u User, err error) {
	started := s.now()
	defer func() { s.finish(ctx, OpGetUser, started, Result{}, err) }()
	if id == "" {
		return User{}, domain.Malformed("missing id")
	}
	u, ok := s.store.GetUser(id)
	if !ok {
		return User{}, domain.ErrNotFound{Entity: EntityUser, ID: id}
	}
	return u, nil
}

// CreateUser stores u under a freshly generated id. Any id or local key on u
// is ignored.
func (s *Service) CreateUser(ctx context.Context, u User) (created User, res Result, err error) {
	started := s.now()
	defer func() { s.finish(ctx, OpCreateUser, started, res, err) }()
	u.ID = s.newID()
	u.LocalKey = ""
	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateUser(u)
		return err
	})
	if err != nil {
		return User{}, res, errors.Wrap(err, "create user")
	}
	return created, res, nil
}

// UpdateUser merges patch into the record stored under id.
func (s *Service) UpdateUser(ctx context.Context, id string, patch UserPatch) (updated User, res Result, err error) {
	started := s.now()
	defer func() { s.finish(ctx, OpUpdateUser, started, res, err) }()
	if id == "" {
		return User{}, Result{}, domain.Malformed("missing id")
	}
	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateUser(id, func(u *User) error {
			patch.Apply(u)
			return nil
		})
		return err
	})
	if err != nil {
		return User{}, res, errors.Wrapf(err, "update user %s", id)
	}
	return updated, res, nil
}

// DeleteUser removes the record stored under id. Deleting a missing record is
// not an error; the bool reports whether anything was removed.
func (s *Service) DeleteUser(ctx context.Context, id string) (removed bool, res Result, err error) {
	started := s.now()
	defer func() { s.finish(ctx, OpDeleteUser, started, res, err) }()
	if id == "" {
		return false, Result{}, domain.Malformed("missing id")
	}
	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		removed, err = tx.DeleteUser(id)
		return err
	})
	if err != nil {
		return false, res, errors.Wrapf(err, "delete user %s", id)
	}
	return removed, res, nil
}

// Seed writes users when the store holds no record and reports how many were
// written. Records without id or local key get a generated id.
func (s *Service) Seed(ctx context.Context, users []User) (n int, err error) {
	started := s.now()
	var res Result
	defer func() { s.finish(ctx, OpSeed, started, res, err) }()
	if len(users) == 0 || len(s.store.ListUsers()) > 0 {
		return 0, nil
	}
	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if len(tx.Snapshot().ListUsers()) > 0 {
			return nil
		}
		for _, u := range users {
			key := domain.IdentityOf(u).WriteKey()
			if key == "" {
				key = s.newID()
			}
			u.ID = key
			if _, err := tx.PutUser(u); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "seed users")
	}
	s.logger.Infow("seeded users", "count", n)
	return n, nil
}
