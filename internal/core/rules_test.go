package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usergrid/pkg/domain"
)

type staticView []User

func (v staticView) ListUsers() []User { return v }

func (v staticView) FindUser(id string) (User, bool) {
	for _, u := range v {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func TestDefaultRulesEngineRegistersBuiltins(t *testing.T) {
	assert.Equal(t, []string{RuleUniqueWriteKey, RuleDuplicateEmail}, NewDefaultRulesEngine().Rules())
}

func TestUniqueWriteKeyRule(t *testing.T) {
	a1, a2, b := User{ID: "a"}, User{ID: "a", FirstName: "x"}, User{ID: "b"}
	res, err := NewUniqueWriteKeyRule().Evaluate(context.Background(), staticView{}, []Change{
		{Action: ActionCreate, After: &a1},
		{Action: ActionCreate, After: &b},
		{Action: ActionUpdate, Before: &a1, After: &a2},
	})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, SeverityBlock, res.Violations[0].Severity)
	assert.Equal(t, "a", res.Violations[0].EntityID)

	res, err = NewUniqueWriteKeyRule().Evaluate(context.Background(), staticView{}, []Change{{Action: ActionCreate, After: &a1}, {Action: ActionCreate, After: &b}})
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
}

func TestDuplicateEmailRuleFlagsTouchedRecordsOnly(t *testing.T) {
	view := staticView{
		{ID: "1", Email: "x@y.com"},
		{ID: "2", Email: "x@y.com"},
		{ID: "3", Email: "z@y.com"},
		{ID: "4"},
		{ID: "5"},
	}
	touched := view[1]
	blank := view[3]
	res, err := NewDuplicateEmailRule().Evaluate(context.Background(), view, []Change{
		{Action: ActionUpdate, Before: &touched, After: &touched},
		{Action: ActionUpdate, Before: &blank, After: &blank},
	})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, domain.SeverityWarn, v.Severity)
	assert.Equal(t, "2", v.EntityID)
	assert.Contains(t, v.Message, "1, 2")
	assert.False(t, res.HasBlocking())

	deleted := view[0]
	res, err = NewDuplicateEmailRule().Evaluate(context.Background(), view, []Change{{Action: ActionDelete, Before: &deleted}})
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
}
