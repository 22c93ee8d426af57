package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"usergrid/pkg/domain"
)

const (
	RuleUniqueWriteKey = "unique_write_key"
	RuleDuplicateEmail = "duplicate_email"
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewUniqueWriteKeyRule())
	engine.Register(NewDuplicateEmailRule())
	return engine
}

// NewUniqueWriteKeyRule blocks a transaction that writes the same record twice.
// A bulk request naming one write key in two items would otherwise let the
// later item silently overwrite the earlier one.
func NewUniqueWriteKeyRule() Rule {
	return uniqueWriteKeyRule{}
}

type uniqueWriteKeyRule struct{}

func (uniqueWriteKeyRule) Name() string { return RuleUniqueWriteKey }

func (uniqueWriteKeyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	seen := make(map[string]int, len(changes))
	for _, c := range changes {
		if key := c.Key(); key != "" {
			seen[key]++
		}
	}
	var dup []string
	for key, n := range seen {
		if n > 1 {
			dup = append(dup, key)
		}
	}
	sort.Strings(dup)
	res := Result{}
	for _, key := range dup {
		res.Violations = append(res.Violations, Violation{
			Rule:     RuleUniqueWriteKey,
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("record %s is written more than once", key),
			Entity:   EntityUser,
			EntityID: key,
		})
	}
	return res, nil
}

// NewDuplicateEmailRule warns when a written record shares its email with
// another stored record. It never blocks; the grid validator is the gate.
func NewDuplicateEmailRule() Rule {
	return duplicateEmailRule{}
}

type duplicateEmailRule struct{}

func (duplicateEmailRule) Name() string { return RuleDuplicateEmail }

func (duplicateEmailRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	touched := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		if c.After != nil {
			touched[c.After.ID] = struct{}{}
		}
	}
	if len(touched) == 0 {
		return Result{}, nil
	}
	owners := make(map[string][]string)
	for _, u := range view.ListUsers() {
		if u.Email == "" {
			continue
		}
		owners[u.Email] = append(owners[u.Email], u.ID)
	}
	res := Result{}
	for _, u := range view.ListUsers() {
		if _, ok := touched[u.ID]; !ok {
			continue
		}
		ids := owners[u.Email]
		if len(ids) < 2 {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     RuleDuplicateEmail,
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("email %s is shared by %s", u.Email, strings.Join(ids, ", ")),
			Entity:   EntityUser,
			EntityID: u.ID,
		})
	}
	return res, nil
}
