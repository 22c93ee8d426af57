package grid

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"usergrid/pkg/domain"
)

type recordingSaver struct {
	mu    sync.Mutex
	calls [][]domain.User
	err   error
}

func (r *recordingSaver) BulkUpsert(_ context.Context, users []domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, users)
	return r.err
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func staticLoader(users ...domain.User) Loader {
	return LoaderFunc(func(context.Context) ([]domain.User, error) { return users, nil })
}

func TestOpenInitializesFromLoader(t *testing.T) {
	e := Open(context.Background(), staticLoader(domain.User{ID: "2", FirstName: "Zed"}, domain.User{ID: "1", FirstName: "Amy"}))
	assert.Equal(t, []string{"Zed", "Amy"}, firstNames(e.Snapshot()))
	assert.False(t, e.Locked())
	assert.Equal(t, DefaultSort, e.Sort())
}

func TestOpenFallsBackToEmptySession(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	loader := LoaderFunc(func(context.Context) ([]domain.User, error) { return nil, errors.New("connection refused") })
	e := Open(context.Background(), loader, WithLogger(zap.New(core)))
	assert.Zero(t, e.Len())
	require.Equal(t, 1, logs.FilterMessage("initial load failed, starting empty").Len())
}

func TestOpenUsesLoaderAsSaver(t *testing.T) {
	type backend struct {
		Loader
		*recordingSaver
	}
	saver := &recordingSaver{}
	e := Open(context.Background(), backend{staticLoader(domain.User{ID: "1", Email: "a@a.com"}), saver})
	require.NoError(t, e.Save(context.Background()))
	assert.Equal(t, 1, saver.count())
}

func TestSaveWithoutSaver(t *testing.T) {
	e := New()
	assert.ErrorIs(t, e.Save(context.Background()), ErrNoSaver)
}

func TestSaveRejectsDuplicateWithoutNetwork(t *testing.T) {
	saver := &recordingSaver{}
	e := Open(context.Background(),
		staticLoader(domain.User{ID: "1", FirstName: "Ann", Email: "a@a.com"}),
		WithSaver(saver),
		WithSessionOptions(WithKeyGenerator(func() string { return "k2" })),
	)
	e.SetField(0, domain.FieldEmail, "a@a.com")
	e.SetField(0, domain.FieldFirstName, "B")
	require.Equal(t, "k2", e.InsertNewRow())
	e.SetField(0, domain.FieldFirstName, "C")
	e.SetField(0, domain.FieldEmail, "a@a.com")

	err := e.Save(context.Background())
	var issues Issues
	require.ErrorAs(t, err, &issues)
	assert.Equal(t, "Duplicate emails for: C, B", err.Error())
	assert.Equal(t, []int{0, 1}, issues.Rows(RuleDuplicateEmail))
	assert.Zero(t, saver.count())
	assert.True(t, e.Locked())
	assert.True(t, e.HasChanges())
}

func TestSaveCommitsOnSuccess(t *testing.T) {
	saver := &recordingSaver{}
	e := Open(context.Background(),
		staticLoader(domain.User{ID: "1", FirstName: "Ann", Email: "a@a.com"}),
		WithSaver(saver),
		WithSessionOptions(WithKeyGenerator(func() string { return "k1" })),
	)
	e.InsertNewRow()
	e.SetField(0, domain.FieldEmail, "new@a.com")
	e.SetField(1, domain.FieldLastName, "Lee")

	require.NoError(t, e.Save(context.Background()))
	require.Equal(t, 1, saver.count())
	sent := saver.calls[0]
	require.Len(t, sent, 2)
	assert.Equal(t, domain.Pending("k1"), domain.IdentityOf(sent[0]))
	assert.Equal(t, "Lee", sent[1].LastName)

	assert.False(t, e.Locked())
	assert.False(t, e.HasChanges())
	assert.Equal(t, "k1", e.Snapshot()[0].ID)

	e.SortBy(domain.FieldEmail)
	assert.Equal(t, []string{"a@a.com", "new@a.com"}, []string{e.Snapshot()[0].Email, e.Snapshot()[1].Email})
}

func TestSaveFailureLeavesSessionUnchanged(t *testing.T) {
	saver := &recordingSaver{err: errors.New("Failed to update documents")}
	e := Open(context.Background(), staticLoader(domain.User{ID: "1", Email: "a@a.com"}), WithSaver(saver))
	e.InsertNewRow()
	e.SetField(0, domain.FieldEmail, "b@a.com")
	before := e.Rows()

	err := e.Save(context.Background())
	require.ErrorContains(t, err, "Failed to update documents")
	assert.Equal(t, before, e.Rows())
	assert.True(t, e.Locked())
	assert.False(t, e.Saving())
}

type blockingSaver struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingSaver) BulkUpsert(ctx context.Context, _ []domain.User) error {
	close(b.entered)
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSaveAllowsOneOutstandingSave(t *testing.T) {
	saver := blockingSaver{entered: make(chan struct{}), release: make(chan struct{})}
	e := Open(context.Background(), staticLoader(domain.User{ID: "1", Email: "a@a.com"}, domain.User{ID: "2", Email: "b@a.com"}), WithSaver(saver))
	e.SetField(0, domain.FieldPhone, "1")

	done := make(chan error, 1)
	go func() { done <- e.Save(context.Background()) }()
	<-saver.entered

	assert.True(t, e.Saving())
	assert.ErrorIs(t, e.Save(context.Background()), ErrSaveInFlight)
	e.SetField(1, domain.FieldPhone, "2")

	close(saver.release)
	require.NoError(t, <-done)
	assert.False(t, e.Saving())
	assert.True(t, e.Locked(), "edit made during the save keeps the lock")
	rows := e.Rows()
	assert.False(t, rows[0].Dirty[domain.FieldPhone])
	assert.True(t, rows[1].Dirty[domain.FieldPhone])
}

func TestReloadDiscardsInFlightCommit(t *testing.T) {
	saver := blockingSaver{entered: make(chan struct{}), release: make(chan struct{})}
	e := Open(context.Background(), staticLoader(domain.User{ID: "1", Email: "a@a.com"}), WithSaver(saver))
	e.SetField(0, domain.FieldPhone, "1")

	done := make(chan error, 1)
	go func() { done <- e.Save(context.Background()) }()
	<-saver.entered
	require.NoError(t, e.Reload(context.Background(), staticLoader(domain.User{ID: "1", Email: "a@a.com", Phone: "1"})))
	e.SetField(0, domain.FieldLastName, "Lee")

	close(saver.release)
	require.NoError(t, <-done)
	assert.True(t, e.Locked())
	assert.True(t, e.Rows()[0].Dirty[domain.FieldLastName])
}

func TestReloadError(t *testing.T) {
	e := New()
	err := e.Reload(context.Background(), LoaderFunc(func(context.Context) ([]domain.User, error) {
		return nil, errors.New("timeout")
	}))
	assert.ErrorContains(t, err, "load users")
}

func TestEditorValidate(t *testing.T) {
	e := Open(context.Background(), staticLoader(domain.User{FirstName: "Ann", Email: "nope"}))
	assert.EqualError(t, e.Validate(), "Invalid email format for: Ann")
}
