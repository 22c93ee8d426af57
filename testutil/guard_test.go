package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"usergrid/internal/core", true},
		{"example.com/mod/internal", true},
		{"usergrid/pkg/domain", false},
		{"internalize", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestThirdPartyImportPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"fmt", false},
		{"net/http", false},
		{"usergrid", false},
		{"usergrid/pkg/domain", false},
		{"go.uber.org/zap", true},
		{"github.com/google/uuid", true},
	}
	for _, c := range cases {
		if got := ThirdPartyImport(c.in); got != c.want {
			t.Fatalf("ThirdPartyImport(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestPackagePrefix(t *testing.T) {
	match := PackagePrefix("usergrid/internal/infra")
	if !match("usergrid/internal/infra") || !match("usergrid/internal/infra/blob/fs") {
		t.Fatal("prefix should match itself and children")
	}
	if match("usergrid/internal/infrastructure") {
		t.Fatal("prefix must stop at a path boundary")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var r recordingFatal
	failIfViolations(&r, "headline", "why", nil)
	if r.msg != "" {
		t.Fatalf("no violations must not fail, got %q", r.msg)
	}
	failIfViolations(&r, "headline", "why", []string{"a", "b"})
	if !strings.Contains(r.msg, "headline (why):\na\nb") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("x.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"usergrid/internal/core\"\n)\nvar _ = fmt.Sprint\n")
	write("x_test.go", "package tmp\nimport \"usergrid/internal/grid\"\n")
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "usergrid/internal/core (in x.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestTransitiveDependencyViolations(t *testing.T) {
	viols, err := transitiveDependencyViolations("usergrid/pkg/domain", ThirdPartyImport)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(viols) != 0 {
		t.Fatalf("domain must stay dependency free, got %v", viols)
	}
	viols, err = transitiveDependencyViolations("usergrid/internal/grid", PackagePrefix("github.com/google/uuid"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(viols) != 1 {
		t.Fatalf("expected uuid to be reported, got %v", viols)
	}
}

func TestImplementerViolations(t *testing.T) {
	viols, err := implementerViolations("usergrid/internal/infra/persistence/...", "usergrid/pkg/domain", "PersistentStore", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(viols) == 0 {
		t.Fatal("backends implement PersistentStore and must be reported when not allowed")
	}
	if _, err := implementerViolations("usergrid/pkg/domain", "usergrid/pkg/domain", "Missing", nil); err == nil {
		t.Fatal("unknown interface must error")
	}
}
