package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usergrid/internal/adapters/users"
	"usergrid/internal/apiclient"
	"usergrid/internal/blob"
	"usergrid/internal/config"
	"usergrid/internal/core"
	"usergrid/internal/grid"
	"usergrid/internal/infra/persistence/blobstate"
	"usergrid/internal/server"
	"usergrid/pkg/domain"
)

// TestIntegrationSmoke runs the edit, validate, save, reload cycle against the
// full HTTP stack for each persistence backend.
func TestIntegrationSmoke(t *testing.T) {
	variants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory",
			open: func(t *testing.T) domain.PersistentStore {
				store, err := core.OpenPersistentStore(context.Background(), config.StorageOptions{Driver: config.StorageMemory}, core.NewDefaultRulesEngine())
				require.NoError(t, err)
				return store
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) domain.PersistentStore {
				store, err := core.OpenPersistentStore(context.Background(), config.StorageOptions{
					Driver:     config.StorageSQLite,
					SQLitePath: filepath.Join(t.TempDir(), "grid.db"),
				}, core.NewDefaultRulesEngine())
				require.NoError(t, err)
				t.Cleanup(func() { _ = core.CloseStore(store) })
				return store
			},
		},
		{
			name: "blob-fs",
			open: func(t *testing.T) domain.PersistentStore {
				store, err := core.OpenPersistentStore(context.Background(), config.StorageOptions{
					Driver: config.StorageBlob,
					Blob:   config.BlobOptions{Driver: "fs", FSRoot: t.TempDir(), Prefix: "grid/"},
				}, core.NewDefaultRulesEngine())
				require.NoError(t, err)
				return store
			},
		},
		{
			name: "blob-mock-s3",
			open: func(t *testing.T) domain.PersistentStore {
				store, err := blobstate.NewStore(context.Background(), blob.NewMockS3ForTests(), "grid/", core.NewDefaultRulesEngine())
				require.NoError(t, err)
				return store
			},
		},
	}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			ctx := context.Background()
			reg := prometheus.NewRegistry()
			svc := core.NewService(v.open(t), core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(reg)))
			_, err := svc.Seed(ctx, []domain.User{{ID: "1", FirstName: "Ann", Email: "a@a.com"}})
			require.NoError(t, err)

			cfg := config.Config{MetricsPath: "/metrics", CORSOrigins: []string{"*"}, ShutdownTimeout: time.Second}
			srv := httptest.NewServer(server.New(cfg, users.NewHandler(svc, nil, users.NewMetrics(reg)), nil, server.WithGatherer(reg)).Handler())
			defer srv.Close()
			client := apiclient.New(srv.URL)

			editor := grid.Open(ctx, client, grid.WithSessionOptions(grid.WithKeyGenerator(func() string { return "k2" })))
			require.Equal(t, 1, editor.Len())

			// Duplicate emails never reach the server.
			editor.SetField(0, domain.FieldEmail, "a@a.com")
			editor.SetField(0, domain.FieldFirstName, "B")
			editor.InsertNewRow()
			editor.SetField(0, domain.FieldFirstName, "C")
			editor.SetField(0, domain.FieldEmail, "a@a.com")
			err = editor.Save(ctx)
			var issues grid.Issues
			require.ErrorAs(t, err, &issues)
			assert.Equal(t, "Duplicate emails for: C, B", issues.Error())
			stored, err := svc.GetUser(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, "Ann", stored.FirstName)

			// Fixed, the same edits save as one batch: merge for "1", create for "k2".
			editor.SetField(0, domain.FieldEmail, "c@a.com")
			require.NoError(t, editor.Save(ctx))
			assert.False(t, editor.Locked())
			assert.False(t, editor.HasChanges())

			all, err := client.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, domain.User{ID: "1", FirstName: "B", Email: "a@a.com"}, all[0])
			assert.Equal(t, domain.User{ID: "k2", FirstName: "C", Email: "c@a.com"}, all[1])

			// A batch with one failing item applies nothing.
			err = client.BulkUpsert(ctx, []domain.User{
				{ID: "1", FirstName: "X", Email: "a@a.com"},
				{ID: "missing", FirstName: "Y", Email: "y@a.com"},
			})
			var status *apiclient.StatusError
			require.ErrorAs(t, err, &status)
			assert.Equal(t, http.StatusInternalServerError, status.StatusCode)
			again, err := client.LoadAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, all, again)

			// A retried first save of a pending row is idempotent.
			require.NoError(t, client.BulkUpsert(ctx, []domain.User{{LocalKey: "k2", FirstName: "C", Email: "c@a.com"}}))
			again, err = client.LoadAll(ctx)
			require.NoError(t, err)
			assert.Len(t, again, 2)

			reloaded := grid.Open(ctx, client)
			reloaded.SortBy(domain.FieldFirstName)
			assert.Equal(t, "C", reloaded.Snapshot()[0].FirstName, "already ascending by first name, so the toggle flips to descending")
		})
	}
}
