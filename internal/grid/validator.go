package grid

import (
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"usergrid/pkg/domain"
)

// Validation rules reported in an Issue.
const (
	RuleEmailFormat    = "email_format"
	RuleDuplicateEmail = "duplicate_email"
)

const emailTag = "gridemail"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func emailValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		if err := v.RegisterValidation(emailTag, func(fl validator.FieldLevel) bool {
			return emailPattern.MatchString(strings.ToLower(fl.Field().String()))
		}); err != nil {
			panic(err)
		}
		validate = v
	})
	return validate
}

// Issue flags one row that fails a rule.
type Issue struct {
	Rule string `json:"rule"`
	Row  int    `json:"row"`
	Name string `json:"name"`
}

// Issues is the outcome of a failed validation. It is returned as the error of
// a save that never reached the network.
type Issues []Issue

func (is Issues) Error() string {
	var lines []string
	if names := is.names(RuleEmailFormat); len(names) > 0 {
		lines = append(lines, "Invalid email format for: "+strings.Join(names, ", "))
	}
	if names := is.names(RuleDuplicateEmail); len(names) > 0 {
		lines = append(lines, "Duplicate emails for: "+strings.Join(names, ", "))
	}
	return strings.Join(lines, "\n")
}

func (is Issues) names(rule string) []string {
	var out []string
	for _, i := range is {
		if i.Rule == rule {
			out = append(out, i.Name)
		}
	}
	return out
}

// Rows returns the row indexes flagged by rule, in row order.
func (is Issues) Rows(rule string) []int {
	var out []int
	for _, i := range is {
		if i.Rule == rule {
			out = append(out, i.Row)
		}
	}
	return out
}

// ValidEmail reports whether email passes the format check.
func ValidEmail(email string) bool {
	return emailValidator().Var(email, emailTag) == nil
}

// Validate checks every record's email format and that no two records share
// an email. It returns nil when users is clean. Format issues come first; a
// duplicate flags every record taking part in it.
func Validate(users []domain.User) Issues {
	var issues Issues
	for i, u := range users {
		if !ValidEmail(u.Email) {
			issues = append(issues, Issue{Rule: RuleEmailFormat, Row: i, Name: u.DisplayName()})
		}
	}
	counts := make(map[string]int, len(users))
	for _, u := range users {
		counts[u.Email]++
	}
	for i, u := range users {
		if counts[u.Email] > 1 {
			issues = append(issues, Issue{Rule: RuleDuplicateEmail, Row: i, Name: u.DisplayName()})
		}
	}
	return issues
}
