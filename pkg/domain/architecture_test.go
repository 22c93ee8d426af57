package domain

import (
	"testing"

	"usergrid/testutil"
)

// TestDomainDoesNotImportInternal keeps the record model importable by the
// grid client and every backend without dragging implementation packages along.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain is shared by client and server")
	testutil.AssertNoDirectImports(t, ".", testutil.ThirdPartyImport, "domain stays on the standard library")
}
