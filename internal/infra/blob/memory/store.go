// Package memory implements an in-memory blob Store for tests and single
// process deployments that do not need durability.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"usergrid/internal/blob/core"
)

type object struct {
	info core.Info
	data []byte
}

// Store implements core.Store backed by process memory.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// New returns an empty in-memory blob store.
func New() *Store {
	return &Store{
		objects: make(map[string]object),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a new blob; fails with core.ErrExists if key is taken.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; exists {
		return core.Info{}, fmt.Errorf("put %s: %w", key, core.ErrExists)
	}
	info := core.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     maps.Clone(opts.Metadata),
		LastModified: s.now(),
	}
	s.objects[key] = object{info: info, data: data}
	return copyInfo(info), nil
}

// Get returns blob metadata and a reader over a private copy of its content.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	return copyInfo(obj.info), io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Delete removes the blob returning true if it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	delete(s.objects, key)
	return ok, nil
}

// List returns all blobs whose key starts with prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.objects))
	for k, v := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyInfo(v.info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func copyInfo(info core.Info) core.Info {
	info.Metadata = maps.Clone(info.Metadata)
	return info
}
