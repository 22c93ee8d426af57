package main

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"usergrid/internal/grid"
	"usergrid/pkg/domain"
)

// Script is an edits file: a list of edits replayed against a fresh session.
//
//	edits:
//	  - id: "1"
//	    set: {email: ann@corp.example}
//	  - insert: true
//	    set: {first_name: Cy, email: cy@example.com}
type Script struct {
	Edits []Edit `yaml:"edits"`
}

// Edit changes the row with ID, or a newly inserted row when Insert is set.
type Edit struct {
	ID     string            `yaml:"id,omitempty"`
	Insert bool              `yaml:"insert,omitempty"`
	Set    map[string]string `yaml:"set"`
}

func loadScript(path string) (Script, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return Script{}, errors.Wrap(err, "read edits file")
	}
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Script{}, errors.Wrapf(err, "decode %s", path)
	}
	for i, e := range s.Edits {
		if e.Insert == (e.ID != "") {
			return Script{}, errors.Errorf("edit %d: exactly one of id or insert is required", i+1)
		}
		for name := range e.Set {
			f, err := domain.ParseField(name)
			if err != nil || !f.Editable() {
				return Script{}, errors.Errorf("edit %d: field %q is not editable", i+1, name)
			}
		}
	}
	return s, nil
}

type editTarget interface {
	Snapshot() []domain.User
	InsertNewRow() string
	SetField(index int, field domain.Field, value string)
}

// apply replays the script. Fields are set in column order so the result does
// not depend on map iteration.
func (s Script) apply(t editTarget) error {
	for i, e := range s.Edits {
		index := 0
		if e.Insert {
			t.InsertNewRow()
		} else {
			index = indexOf(t.Snapshot(), e.ID)
			if index < 0 {
				return errors.Errorf("edit %d: no user with id %q", i+1, e.ID)
			}
		}
		for _, f := range domain.Fields() {
			if v, ok := e.Set[string(f)]; ok {
				t.SetField(index, f, v)
			}
		}
	}
	return nil
}

func indexOf(users []domain.User, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

var _ editTarget = (*grid.Editor)(nil)
