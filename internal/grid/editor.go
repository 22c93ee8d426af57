package grid

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"usergrid/pkg/domain"
)

// ErrSaveInFlight is returned by Save while an earlier save is outstanding.
var ErrSaveInFlight = errors.New("grid: save already in progress")

// ErrNoSaver is returned by Save when the editor has nowhere to send records.
var ErrNoSaver = errors.New("grid: no saver configured")

// Option configures an Editor.
type Option func(*Editor)

// WithLogger sets the logger used for load and save outcomes.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Editor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSaver sets the bulk upsert target. Without it the loader is used when it
// also implements Saver.
func WithSaver(s Saver) Option {
	return func(e *Editor) { e.saver = s }
}

// WithSessionOptions forwards options to the underlying session.
func WithSessionOptions(opts ...SessionOption) Option {
	return func(e *Editor) { e.sessionOpts = append(e.sessionOpts, opts...) }
}

// Editor wraps a Session for use from more than one goroutine and runs the
// validate, upsert, commit cycle of a save.
type Editor struct {
	mu          sync.Mutex
	session     *Session
	saver       Saver
	saving      bool
	logger      *zap.Logger
	sessionOpts []SessionOption
}

// New returns an editor over an empty session.
func New(opts ...Option) *Editor {
	e := &Editor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.session = NewSession(e.sessionOpts...)
	return e
}

// Open builds an editor initialized from loader. A failed load is logged and
// leaves the session empty.
func Open(ctx context.Context, loader Loader, opts ...Option) *Editor {
	e := New(opts...)
	if e.saver == nil {
		if s, ok := loader.(Saver); ok {
			e.saver = s
		}
	}
	if loader == nil {
		return e
	}
	users, err := loader.LoadAll(ctx)
	if err != nil {
		e.logger.Warn("initial load failed, starting empty", zap.Error(err))
		users = nil
	}
	e.session.Initialize(users)
	e.logger.Debug("session initialized", zap.Int("rows", len(users)))
	return e
}

// Reload replaces the working copy with a fresh load. A save still in flight
// will not commit into the reloaded session.
func (e *Editor) Reload(ctx context.Context, loader Loader) error {
	users, err := loader.LoadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "load users")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Initialize(users)
	return nil
}

// SetField edits one cell. See Session.SetField.
func (e *Editor) SetField(index int, field domain.Field, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.SetField(index, field, value)
}

// SortBy reorders rows unless the session is locked.
func (e *Editor) SortBy(field domain.Field) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.SortBy(field)
}

// InsertNewRow prepends a blank row and returns its local key.
func (e *Editor) InsertNewRow() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.InsertNewRow()
}

func (e *Editor) Snapshot() []domain.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Snapshot()
}

func (e *Editor) Rows() []Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Rows()
}

func (e *Editor) Locked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Locked()
}

func (e *Editor) Sort() SortState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Sort()
}

func (e *Editor) HasChanges() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.HasChanges()
}

func (e *Editor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Len()
}

// Saving reports whether a save is outstanding.
func (e *Editor) Saving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saving
}

// Validate runs the validator over the current snapshot.
func (e *Editor) Validate() Issues {
	return Validate(e.Snapshot())
}

// Save validates the working copy and sends it as one bulk upsert. Validation
// failures are returned as Issues without contacting the server. When the
// upsert fails the session is left as it was; on success the edits covered by
// the save are committed.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	if e.saving {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	if e.saver == nil {
		e.mu.Unlock()
		return ErrNoSaver
	}
	ticket := e.session.BeginSave()
	if issues := Validate(ticket.Users); len(issues) > 0 {
		e.mu.Unlock()
		return issues
	}
	e.saving = true
	saver := e.saver
	e.mu.Unlock()

	err := saver.BulkUpsert(ctx, ticket.Users)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.saving = false
	if err != nil {
		e.logger.Warn("save failed", zap.Error(err), zap.Int("rows", len(ticket.Users)))
		return errors.Wrap(err, "save users")
	}
	if !e.session.CommitSaved(ticket) {
		e.logger.Info("session reloaded during save, commit skipped")
		return nil
	}
	e.logger.Info("save committed", zap.Int("rows", len(ticket.Users)), zap.Bool("locked", e.session.Locked()))
	return nil
}
