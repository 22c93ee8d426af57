// Package testutil provides reusable testing helpers for enforcing architectural
// boundaries across the repository.
package testutil

import (
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "usergrid"

// AssertNoTransitiveDependency loads pattern with its dependency graph and
// fails if any package reachable from it satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfViolations(t, "forbidden transitive dependency detected", reason, viols)
}

// AssertNoDirectImports scans the non-test .go files in dir and fails if any
// import path satisfies forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfViolations(t, "forbidden direct imports detected", reason, viols)
}

// AssertImplementersConfined fails when a named type outside allowed
// implements the interface ifacePkg.ifaceName, directly or through a pointer.
// Only packages matched by pattern are inspected; test files are ignored.
func AssertImplementersConfined(t testing.TB, pattern, ifacePkg, ifaceName string, allowed []string) {
	t.Helper()
	viols, err := implementerViolations(pattern, ifacePkg, ifaceName, allowed)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfViolations(t, "unsanctioned implementation of "+ifacePkg+"."+ifaceName, "", viols)
}

// InternalImportForbidden matches any import path inside an internal tree.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// ThirdPartyImport matches import paths outside the standard library and
// this module.
func ThirdPartyImport(path string) bool {
	if path == ModulePath || strings.HasPrefix(path, ModulePath+"/") {
		return false
	}
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// PackagePrefix matches prefix and every package beneath it.
func PackagePrefix(prefix string) func(string) bool {
	return func(path string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
}

var loadPackages = func(mode packages.LoadMode, pattern string) ([]*packages.Package, error) {
	pkgs, err := packages.Load(&packages.Config{Mode: mode}, pattern)
	if err != nil {
		return nil, err
	}
	var errs []string
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			errs = append(errs, e.Error())
		}
	})
	if len(errs) > 0 {
		return nil, &loadError{msgs: errs}
	}
	return pkgs, nil
}

type loadError struct{ msgs []string }

func (e *loadError) Error() string { return strings.Join(e.msgs, "\n") }

func transitiveDependencyViolations(pattern string, forbidden func(path string) bool) ([]string, error) {
	pkgs, err := loadPackages(packages.NeedName|packages.NeedImports|packages.NeedDeps, pattern)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		if forbidden(p.PkgPath) {
			seen[p.PkgPath] = struct{}{}
		}
	})
	return sortedKeys(seen), nil
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip, _ := strconv.Unquote(imp.Path.Value)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

func implementerViolations(pattern, ifacePkg, ifaceName string, allowed []string) ([]string, error) {
	pkgs, err := loadPackages(packages.NeedName|packages.NeedTypes|packages.NeedImports|packages.NeedDeps, pattern)
	if err != nil {
		return nil, err
	}
	var iface *types.Interface
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		if p.PkgPath != ifacePkg || p.Types == nil || iface != nil {
			return
		}
		if obj := p.Types.Scope().Lookup(ifaceName); obj != nil {
			iface, _ = obj.Type().Underlying().(*types.Interface)
		}
	})
	if iface == nil {
		return nil, &loadError{msgs: []string{"interface " + ifacePkg + "." + ifaceName + " not found from " + pattern}}
	}

	isAllowed := func(path string) bool {
		for _, a := range allowed {
			if path == a {
				return true
			}
		}
		return false
	}
	seen := map[string]struct{}{}
	for _, p := range pkgs {
		if p.Types == nil || isAllowed(p.PkgPath) {
			continue
		}
		scope := p.Types.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*types.TypeName)
			if !ok || types.IsInterface(tn.Type()) {
				continue
			}
			if types.Implements(tn.Type(), iface) || types.Implements(types.NewPointer(tn.Type()), iface) {
				seen[p.PkgPath+"."+name] = struct{}{}
			}
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, headline, reason string, viols []string) {
	if len(viols) == 0 {
		return
	}
	if reason != "" {
		headline += " (" + reason + ")"
	}
	t.Fatalf("%s:\n%s", headline, strings.Join(viols, "\n"))
}
