package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usergrid/internal/adapters/users"
	"usergrid/internal/core"
	"usergrid/pkg/domain"
)

func newBackend(t *testing.T) (*httptest.Server, *core.Service) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	_, err := svc.Seed(context.Background(), []domain.User{
		{ID: "1", FirstName: "Ann", LastName: "Lee", Email: "ann@example.com"},
		{ID: "2", FirstName: "Bo", LastName: "Kim", Email: "bo@example.com"},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(users.NewHandler(svc, nil, nil))
	t.Cleanup(srv.Close)
	return srv, svc
}

func execute(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--api-url", url}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestListTable(t *testing.T) {
	srv, _ := newBackend(t)
	out, err := execute(t, srv.URL, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "FIRST NAME")
	assert.Contains(t, out, "ann@example.com")
	assert.Less(t, bytes.Index([]byte(out), []byte("Ann")), bytes.Index([]byte(out), []byte("Bo")))
}

func TestSortDescendingJSON(t *testing.T) {
	srv, _ := newBackend(t)
	out, err := execute(t, srv.URL, "sort", "first_name", "--desc", "-o", "json")
	require.NoError(t, err)
	var rows []jsonRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Bo", rows[0].FirstName)
	assert.Equal(t, "Ann", rows[1].FirstName)

	out, err = execute(t, srv.URL, "sort", "first_name", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, "Ann", rows[0].FirstName)
}

func TestSortUnknownField(t *testing.T) {
	srv, _ := newBackend(t)
	_, err := execute(t, srv.URL, "sort", "nickname")
	require.ErrorContains(t, err, "unknown field")
}

func TestApplySavesInOneBulkUpsert(t *testing.T) {
	srv, svc := newBackend(t)
	path := writeFile(t, `edits:
  - id: "1"
    set: {email: ann@corp.example, position: CTO}
  - insert: true
    set: {first_name: Cy, email: cy@example.com}
`)
	out, err := execute(t, srv.URL, "apply", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "saved 3 users")

	ann, err := svc.GetUser(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "ann@corp.example", ann.Email)
	assert.Equal(t, "CTO", ann.Position)
	all, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	var cy domain.User
	for _, u := range all {
		if u.FirstName == "Cy" {
			cy = u
		}
	}
	assert.NotEmpty(t, cy.ID)
}

func TestApplyRejectsDuplicatesWithoutSaving(t *testing.T) {
	srv, svc := newBackend(t)
	path := writeFile(t, `edits:
  - insert: true
    set: {first_name: Cy, email: ann@example.com}
`)
	out, err := execute(t, srv.URL, "-o", "json", "apply", "-f", path)
	require.ErrorContains(t, err, "validation failed")
	var res applyResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Saved)
	assert.Equal(t, "Duplicate emails for: Cy, Ann", res.Message)

	all, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestApplyDryRunAndValidate(t *testing.T) {
	srv, svc := newBackend(t)
	path := writeFile(t, `edits:
  - id: "2"
    set: {email: bo@corp.example}
`)
	out, err := execute(t, srv.URL, "apply", "-f", path, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "2 users valid")

	out, err = execute(t, srv.URL, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "2 users valid")

	bad := writeFile(t, `edits:
  - id: "2"
    set: {email: broken}
`)
	out, err = execute(t, srv.URL, "validate", "-f", bad)
	require.Error(t, err)
	assert.Contains(t, out, "Invalid email format for: Bo")

	got, err := svc.GetUser(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "bo@example.com", got.Email)
}

func TestApplyScriptErrors(t *testing.T) {
	srv, _ := newBackend(t)
	cases := map[string]string{
		"unknown id":      "edits:\n  - id: \"9\"\n    set: {email: a@b.co}\n",
		"not editable":    "edits:\n  - id: \"1\"\n    set: {id: x}\n",
		"id and insert":   "edits:\n  - id: \"1\"\n    insert: true\n    set: {}\n",
		"unknown key":     "edits:\n  - id: \"1\"\n    patch: {}\n",
		"neither id/flag": "edits:\n  - set: {email: a@b.co}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, srv.URL, "apply", "-f", writeFile(t, body))
			require.Error(t, err)
		})
	}
}

func TestApplyRequiresFile(t *testing.T) {
	srv, _ := newBackend(t)
	_, err := execute(t, srv.URL, "apply")
	require.Error(t, err)
}

func TestListServerDown(t *testing.T) {
	srv, _ := newBackend(t)
	srv.Close()
	_, err := execute(t, srv.URL, "list")
	require.ErrorContains(t, err, "load users")
}
