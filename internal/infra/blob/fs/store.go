// Package fs implements the blob Store on a local directory. Keys map to
// relative paths under the root; a `.meta` sidecar holds content type and user
// metadata.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"usergrid/internal/blob/core"
)

const (
	metaSuffix = ".meta"
	tmpPrefix  = ".tmp-"
)

// Store implements core.Store using the local filesystem.
type Store struct {
	root string
}

// New returns a filesystem-backed blob store rooted at path, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the directory blobs are stored under.
func (s *Store) Root() string { return s.root }

// sanitizeKey rejects keys that are empty, absolute or escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key traversal %q", key)
	}
	if strings.HasSuffix(clean, metaSuffix) || strings.HasPrefix(filepath.Base(clean), tmpPrefix) {
		return "", fmt.Errorf("reserved key %q", key)
	}
	return clean, nil
}

func (s *Store) pathFor(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Put streams r into a temp file and hard-links it into place, which fails
// when the key already exists.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	dataPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return core.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), tmpPrefix+"*")
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	size, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return core.Info{}, err
	}
	if err := os.Link(tmp.Name(), dataPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return core.Info{}, fmt.Errorf("put %s: %w", key, core.ErrExists)
		}
		return core.Info{}, err
	}
	if opts.ContentType != "" || len(opts.Metadata) > 0 {
		meta, err := json.Marshal(metaFile{ContentType: opts.ContentType, Metadata: opts.Metadata})
		if err != nil {
			return core.Info{}, err
		}
		if err := os.WriteFile(dataPath+metaSuffix, meta, 0o600); err != nil {
			return core.Info{}, err
		}
	}
	return core.Info{
		Key:          key,
		Size:         size,
		ContentType:  opts.ContentType,
		Metadata:     maps.Clone(opts.Metadata),
		LastModified: time.Now().UTC(),
	}, nil
}

// Get opens the blob for reading.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	dataPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Info{}, nil, fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	info, err := s.describe(key, dataPath, stat)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	return info, file, nil
}

// Delete removes the blob and its sidecar.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(dataPath + metaSuffix)
	return true, nil
}

// List walks the root and returns blobs whose key starts with prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		stat, err := d.Info()
		if err != nil {
			return err
		}
		info, err := s.describe(key, path, stat)
		if err != nil {
			return err
		}
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) describe(key, dataPath string, stat fs.FileInfo) (core.Info, error) {
	info := core.Info{Key: key, Size: stat.Size(), LastModified: stat.ModTime().UTC()}
	raw, err := os.ReadFile(dataPath + metaSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return core.Info{}, err
	}
	var mf metaFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return core.Info{}, fmt.Errorf("decode metadata for %s: %w", key, err)
	}
	info.ContentType = mf.ContentType
	info.Metadata = mf.Metadata
	return info, nil
}
