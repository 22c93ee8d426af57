// Package domain holds the user record model, its identity rules and the
// persistence and rule contracts shared by the server and the grid client.
package domain

import (
	"fmt"
)

// EntityType identifies the type of record stored in the document store.
type EntityType string

// EntityUser is the only collection managed by the grid.
const EntityUser EntityType = "user"

// Field names a column of the user record. Values match the JSON keys used on
// the wire.
type Field string

const (
	FieldID        Field = "id"
	FieldFirstName Field = "first_name"
	FieldLastName  Field = "last_name"
	FieldPosition  Field = "position"
	FieldPhone     Field = "phone"
	FieldEmail     Field = "email"
)

var editableFields = []Field{FieldFirstName, FieldLastName, FieldPosition, FieldPhone, FieldEmail}

// Fields returns the editable fields in grid column order.
func Fields() []Field {
	return append([]Field(nil), editableFields...)
}

// Editable reports whether the field can be changed by an operator.
func (f Field) Editable() bool {
	return f.index() >= 0
}

// Sortable reports whether rows can be ordered by the field.
func (f Field) Sortable() bool {
	return f == FieldID || f.Editable()
}

func (f Field) index() int {
	for i, candidate := range editableFields {
		if candidate == f {
			return i
		}
	}
	return -1
}

// ParseField resolves a column name to a Field.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if !f.Sortable() {
		return "", fmt.Errorf("unknown field %q", name)
	}
	return f, nil
}

// User is a row of the grid and a document of the user collection.
//
// ID is assigned once the record has been persisted. LocalKey is a client-side
// key generated when a row is created locally; it is never stored.
type User struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	LocalKey  string `json:"localKey,omitempty" yaml:"localKey,omitempty"`
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	Position  string `json:"position" yaml:"position"`
	Phone     string `json:"phone" yaml:"phone"`
	Email     string `json:"email" yaml:"email"`
}

// Value returns the value stored under field. Unknown fields read as empty.
func (u User) Value(field Field) string {
	switch field {
	case FieldID:
		return u.ID
	case FieldFirstName:
		return u.FirstName
	case FieldLastName:
		return u.LastName
	case FieldPosition:
		return u.Position
	case FieldPhone:
		return u.Phone
	case FieldEmail:
		return u.Email
	default:
		return ""
	}
}

// Set replaces a single editable field, leaving the others untouched.
func (u *User) Set(field Field, value string) error {
	switch field {
	case FieldFirstName:
		u.FirstName = value
	case FieldLastName:
		u.LastName = value
	case FieldPosition:
		u.Position = value
	case FieldPhone:
		u.Phone = value
	case FieldEmail:
		u.Email = value
	default:
		return fmt.Errorf("field %q is not editable", field)
	}
	return nil
}

// DisplayName is the label used when a record is named in messages.
func (u User) DisplayName() string {
	return u.FirstName
}

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but allows commit.
	SeverityWarn Severity = "warn"
)

// Action indicates the type of modification performed.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a mutation applied to a record during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before *User
	After  *User
}

// Key returns the id of the record touched by the change.
func (c Change) Key() string {
	if c.After != nil {
		return c.After.ID
	}
	if c.Before != nil {
		return c.Before.ID
	}
	return ""
}

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id,omitempty"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
