// Package blobstate persists the user collection as zstd-compressed JSON
// snapshots in a blob store. Every commit writes a new generation under a
// create-only key; the newest readable generation wins on load, so a failed
// or interrupted write never replaces the last good state.
package blobstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"usergrid/internal/blob"
	"usergrid/internal/infra/persistence/memory"
	"usergrid/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	formatVersion   = 1
	snapshotPrefix  = "snapshot-"
	snapshotSuffix  = ".json.zst"
	contentType     = "application/zstd"
	defaultKeep     = 3
	generationWidth = 20
)

type envelope struct {
	Version    int                    `json:"version"`
	Generation uint64                 `json:"generation"`
	WrittenAt  time.Time              `json:"written_at"`
	Users      map[string]domain.User `json:"users"`
}

// Option configures a Store.
type Option func(*Store)

// WithKeep sets how many generations survive pruning (minimum 1).
func WithKeep(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.keep = n
		}
	}
}

// WithClock overrides the timestamp source recorded in each generation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store layers snapshot generations in a blob.Store under the in-memory store.
type Store struct {
	*memory.Store
	blobs      blob.Store
	prefix     string
	generation atomic.Uint64
	keep       int
	now        func() time.Time
}

// NewStore loads the newest generation under prefix and returns a store that
// appends a generation per committed transaction.
func NewStore(ctx context.Context, blobs blob.Store, prefix string, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	s := &Store{
		blobs:  blobs,
		prefix: prefix,
		keep:   defaultKeep,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.persist))
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Generation returns the number of the last generation loaded or written.
func (s *Store) Generation() uint64 { return s.generation.Load() }

func (s *Store) key(gen uint64) string {
	return fmt.Sprintf("%s%s%0*d%s", s.prefix, snapshotPrefix, generationWidth, gen, snapshotSuffix)
}

func (s *Store) parseKey(key string) (uint64, bool) {
	rest, ok := strings.CutPrefix(key, s.prefix+snapshotPrefix)
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, snapshotSuffix)
	if !ok {
		return 0, false
	}
	gen, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

// generations lists stored generation numbers in ascending order.
func (s *Store) generations(ctx context.Context) ([]uint64, error) {
	infos, err := s.blobs.List(ctx, s.prefix+snapshotPrefix)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	gens := make([]uint64, 0, len(infos))
	for _, info := range infos {
		if gen, ok := s.parseKey(info.Key); ok {
			gens = append(gens, gen)
		}
	}
	// Zero padded keys list in numeric order.
	return gens, nil
}

func (s *Store) load(ctx context.Context) error {
	gens, err := s.generations(ctx)
	if err != nil {
		return err
	}
	if len(gens) == 0 {
		return nil
	}
	s.generation.Store(gens[len(gens)-1])
	var lastErr error
	for i := len(gens) - 1; i >= 0; i-- {
		env, err := s.read(ctx, gens[i])
		if err != nil {
			lastErr = err
			continue
		}
		s.ImportState(memory.Snapshot{Users: env.Users})
		return nil
	}
	return fmt.Errorf("no readable snapshot generation: %w", lastErr)
}

func (s *Store) read(ctx context.Context, gen uint64) (envelope, error) {
	_, rc, err := s.blobs.Get(ctx, s.key(gen))
	if err != nil {
		return envelope{}, err
	}
	defer func() { _ = rc.Close() }()
	dec, err := zstd.NewReader(rc)
	if err != nil {
		return envelope{}, err
	}
	defer dec.Close()
	var env envelope
	if err := json.NewDecoder(dec).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("decode generation %d: %w", gen, err)
	}
	if env.Version != formatVersion {
		return envelope{}, fmt.Errorf("generation %d: unsupported format version %d", gen, env.Version)
	}
	return env, nil
}

func encode(env envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(enc).Encode(env); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Store) persist(ctx context.Context, next memory.Snapshot, _ []domain.Change) error {
	gen := s.generation.Load() + 1
	data, err := encode(envelope{Version: formatVersion, Generation: gen, WrittenAt: s.now(), Users: next.Users})
	if err != nil {
		return fmt.Errorf("encode generation %d: %w", gen, err)
	}
	_, err = s.blobs.Put(ctx, s.key(gen), bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"generation": strconv.FormatUint(gen, 10)},
	})
	if err != nil {
		if errors.Is(err, blob.ErrExists) {
			return fmt.Errorf("generation %d written by another process: %w", gen, err)
		}
		return fmt.Errorf("write generation %d: %w", gen, err)
	}
	s.generation.Store(gen)
	s.prune(ctx)
	return nil
}

// prune removes generations older than the retention window. Failures leave
// extra generations behind, which load tolerates.
func (s *Store) prune(ctx context.Context) {
	gens, err := s.generations(ctx)
	if err != nil || len(gens) <= s.keep {
		return
	}
	for _, gen := range gens[:len(gens)-s.keep] {
		_, _ = s.blobs.Delete(ctx, s.key(gen))
	}
}

// ReadGeneration decodes a stored generation without loading it; used by
// operators inspecting history.
func (s *Store) ReadGeneration(ctx context.Context, gen uint64) (map[string]domain.User, error) {
	env, err := s.read(ctx, gen)
	if err != nil {
		return nil, err
	}
	return env.Users, nil
}

// Close is a no-op; blob stores hold no per-store handles.
func (s *Store) Close() error { return nil }
