package core

import "usergrid/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	User               = domain.User
	UserPatch          = domain.UserPatch
	BatchItem          = domain.BatchItem
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityUser = domain.EntityUser
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
