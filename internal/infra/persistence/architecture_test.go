package persistence_test

import (
	"testing"

	"usergrid/testutil"
)

// TestOnlyBackendsImplementPersistentStore keeps every durable backend behind
// the memory store's transaction semantics.
func TestOnlyBackendsImplementPersistentStore(t *testing.T) {
	testutil.AssertImplementersConfined(t, "usergrid/...", "usergrid/pkg/domain", "PersistentStore", []string{
		"usergrid/internal/infra/persistence/memory",
		"usergrid/internal/infra/persistence/sqlite",
		"usergrid/internal/infra/persistence/postgres",
		"usergrid/internal/infra/persistence/blobstate",
	})
}

func TestOnlyCoreOpensBackends(t *testing.T) {
	backends := testutil.PackagePrefix("usergrid/internal/infra/persistence")
	for _, dir := range []string{"../../adapters/users", "../../server", "../../../cmd/usergrid-server"} {
		testutil.AssertNoDirectImports(t, dir, backends, dir+" opens stores through core")
	}
	for _, pkg := range []string{"usergrid/internal/grid", "usergrid/internal/apiclient", "usergrid/cmd/usergrid"} {
		testutil.AssertNoTransitiveDependency(t, pkg, backends, pkg+" is client side")
	}
}
