// Package grid is the client side of the editable user grid: an edit session
// holding the working copy, its validation, and the save round trip.
package grid

import (
	"fmt"
	"maps"
	"sort"

	"github.com/google/uuid"

	"usergrid/pkg/domain"
)

// State is the session lock.
type State uint8

const (
	// Unlocked accepts sort requests.
	Unlocked State = iota
	// Locked means a field was edited since the last successful save.
	Locked
)

func (s State) String() string {
	if s == Locked {
		return "locked"
	}
	return "unlocked"
}

// Direction orders a sort.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

// SortState is the field rows are ordered by.
type SortState struct {
	Field     domain.Field
	Direction Direction
}

// DefaultSort orders rows by first name, ascending.
var DefaultSort = SortState{Field: domain.FieldFirstName, Direction: Ascending}

// DirtyFlags marks the editable fields changed since the last save.
type DirtyFlags map[domain.Field]bool

// Row pairs a working record with its dirty flags.
type Row struct {
	User  domain.User
	Dirty DirtyFlags
}

// row keeps, per dirty field, the revision of its last edit so a commit can
// tell edits it covers from edits made after the save was issued.
type row struct {
	user  domain.User
	edits map[domain.Field]uint64
}

// SaveTicket is what a save sends and what its commit may clear.
type SaveTicket struct {
	Users    []domain.User
	revision uint64
	epoch    uint64
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithKeyGenerator overrides how local keys for new rows are made.
func WithKeyGenerator(fn func() string) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.newKey = fn
		}
	}
}

// Session is the working copy of the grid. It is not safe for concurrent use;
// Editor serializes access to it.
type Session struct {
	rows     []row
	sort     SortState
	state    State
	revision uint64
	epoch    uint64
	keys     map[string]struct{}
	newKey   func() string
}

// NewSession returns an empty, unlocked session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		sort:   DefaultSort,
		keys:   make(map[string]struct{}),
		newKey: newLocalKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newLocalKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Initialize replaces the working copy with records, in the given order, with
// clean flags, the default sort and the lock released.
func (s *Session) Initialize(records []domain.User) {
	s.rows = make([]row, 0, len(records))
	s.keys = make(map[string]struct{}, len(records))
	for _, u := range records {
		s.rows = append(s.rows, row{user: u})
		if u.LocalKey != "" {
			s.keys[u.LocalKey] = struct{}{}
		}
		if u.ID != "" {
			s.keys[u.ID] = struct{}{}
		}
	}
	s.sort = DefaultSort
	s.state = Unlocked
	s.epoch++
}

// Len returns the number of rows.
func (s *Session) Len() int { return len(s.rows) }

// State returns the lock state.
func (s *Session) State() State { return s.state }

// Locked reports whether sorting is disabled.
func (s *Session) Locked() bool { return s.state == Locked }

// Sort returns the current sort state.
func (s *Session) Sort() SortState { return s.sort }

// SetField replaces one field of one row, marks it dirty and locks the
// session. An index outside [0, Len()) or a non-editable field panics.
func (s *Session) SetField(index int, field domain.Field, value string) {
	if index < 0 || index >= len(s.rows) {
		panic(fmt.Sprintf("grid: row %d out of range [0,%d)", index, len(s.rows)))
	}
	r := &s.rows[index]
	if err := r.user.Set(field, value); err != nil {
		panic("grid: " + err.Error())
	}
	s.revision++
	if r.edits == nil {
		r.edits = make(map[domain.Field]uint64, 1)
	}
	r.edits[field] = s.revision
	s.state = Locked
}

// SortBy orders rows by field. Ignored while locked. Asking again for the
// current ascending field flips it to descending; anything else sorts
// ascending. Equal values keep their relative order.
func (s *Session) SortBy(field domain.Field) {
	if s.state == Locked || !field.Sortable() {
		return
	}
	dir := Ascending
	if s.sort.Field == field && s.sort.Direction == Ascending {
		dir = Descending
	}
	s.sort = SortState{Field: field, Direction: dir}
	sort.SliceStable(s.rows, func(i, j int) bool {
		a, b := s.rows[i].user.Value(field), s.rows[j].user.Value(field)
		if dir == Descending {
			return a > b
		}
		return a < b
	})
}

// InsertNewRow prepends a blank pending row and returns its local key. It
// does not lock the session.
func (s *Session) InsertNewRow() string {
	key := s.newKey()
	for _, taken := s.keys[key]; taken || key == ""; _, taken = s.keys[key] {
		key = s.newKey()
	}
	s.keys[key] = struct{}{}
	s.rows = append([]row{{user: domain.User{LocalKey: key}}}, s.rows...)
	return key
}

// Snapshot returns a copy of the working records.
func (s *Session) Snapshot() []domain.User {
	out := make([]domain.User, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.user
	}
	return out
}

// Rows returns the working records with their dirty flags, for rendering.
func (s *Session) Rows() []Row {
	out := make([]Row, len(s.rows))
	for i, r := range s.rows {
		flags := make(DirtyFlags, len(domain.Fields()))
		for _, f := range domain.Fields() {
			_, flags[f] = r.edits[f]
		}
		out[i] = Row{User: r.user, Dirty: flags}
	}
	return out
}

// Dirty reports whether field of row index changed since the last save.
func (s *Session) Dirty(index int, field domain.Field) bool {
	if index < 0 || index >= len(s.rows) {
		return false
	}
	_, ok := s.rows[index].edits[field]
	return ok
}

// HasChanges reports whether any field of any row is dirty.
func (s *Session) HasChanges() bool {
	for _, r := range s.rows {
		if len(r.edits) > 0 {
			return true
		}
	}
	return false
}

// BeginSave captures the records to send and the edits they cover.
func (s *Session) BeginSave() SaveTicket {
	return SaveTicket{Users: s.Snapshot(), revision: s.revision, epoch: s.epoch}
}

// CommitSaved applies a successful save of ticket. Dirty flags whose last
// edit the ticket covers are cleared, rows saved as pending take their local
// key as id, and the lock is released unless a field was edited after the
// ticket was issued. A ticket from before the last Initialize is ignored and
// CommitSaved reports false.
func (s *Session) CommitSaved(t SaveTicket) bool {
	if t.epoch != s.epoch {
		return false
	}
	promoted := make(map[string]struct{})
	for _, u := range t.Users {
		if id := domain.IdentityOf(u); id.IsPending() {
			promoted[id.WriteKey()] = struct{}{}
		}
	}
	for i := range s.rows {
		r := &s.rows[i]
		for f, rev := range r.edits {
			if rev <= t.revision {
				delete(r.edits, f)
			}
		}
		if r.user.ID == "" {
			if _, ok := promoted[r.user.LocalKey]; ok {
				r.user.ID = r.user.LocalKey
				r.user.LocalKey = ""
			}
		}
	}
	if s.revision == t.revision {
		s.state = Unlocked
	}
	return true
}

// CommitSuccess clears every dirty flag and releases the lock.
func (s *Session) CommitSuccess() {
	s.CommitSaved(s.BeginSave())
}

// Clone returns an independent copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.rows = make([]row, len(s.rows))
	for i, r := range s.rows {
		c.rows[i] = row{user: r.user, edits: maps.Clone(r.edits)}
	}
	c.keys = maps.Clone(s.keys)
	return &c
}
