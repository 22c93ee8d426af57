package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"usergrid/internal/apiclient"
	"usergrid/internal/config"
	"usergrid/pkg/domain"
)

const seedYAML = `users:
  - id: "1"
    first_name: Ann
    email: ann@example.com
  - id: "2"
    first_name: Bo
    email: bo@example.com
`

type running struct {
	url    string
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, cfg config.Config) running {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop(), ln) }()
	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	return running{url: url, cancel: cancel, done: done}
}

func (r running) stop(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedYAML), 0o600))
	return config.Config{
		SeedFile:        seed,
		CORSOrigins:     []string{"*"},
		MetricsPath:     "/metrics",
		ShutdownTimeout: time.Second,
		Storage: config.StorageOptions{
			Driver:     config.StorageSQLite,
			SQLitePath: filepath.Join(dir, "data", "usergrid.db"),
		},
	}
}

func TestRunServesSeededStoreAndPersists(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	srv := start(t, cfg)
	client := apiclient.New(srv.url)
	users, err := client.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	require.NoError(t, client.BulkUpsert(ctx, []domain.User{
		{ID: "1", FirstName: "Ann", LastName: "Lee", Email: "ann@example.com"},
		{LocalKey: "k3", FirstName: "Cy", Email: "cy@example.com"},
	}))

	resp, err := http.Get(srv.url + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "usergrid_api_requests_total")
	assert.Contains(t, string(body), "usergrid_service_operations_total")
	assert.Contains(t, string(body), "go_goroutines")
	srv.stop(t)

	srv = start(t, cfg)
	defer srv.stop(t)
	users, err = apiclient.New(srv.url).LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3, "seed is skipped for a non-empty store")
	assert.Equal(t, "Lee", users[0].LastName)
	assert.Equal(t, "k3", users[2].ID)
}

func TestRunFailsOnBadSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.SeedFile = filepath.Join(t.TempDir(), "missing.yaml")
	err := run(context.Background(), cfg, zap.NewNop(), nil)
	require.ErrorContains(t, err, "load seed file")
}

func TestRunFailsOnUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "cassandra"
	err := run(context.Background(), cfg, zap.NewNop(), nil)
	require.ErrorContains(t, err, "open store")
}
