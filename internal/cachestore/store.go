// Package cachestore persists computed cache tiles as individual files
// inside a recipe's cache directory.
//
// File names derive deterministically from the tile footprint, so a warm
// cache survives process restarts. Writes are atomic: a tile file is either
// fully present or absent, never half-written. The store owns no eviction
// policy; the cache directory's lifecycle is managed by whoever owns the
// recipe.
package cachestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/raster"
)

// ErrCorrupt wraps read failures caused by an unreadable or checksum-failed
// tile file. Callers treat it as a cache miss but should log it loudly.
var ErrCorrupt = errors.New("cachestore: corrupt tile")

// Store maps tile footprints to files under one directory.
type Store struct {
	dir string
}

// New opens (creating if needed) the cache directory at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("cachestore: empty cache directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string { return s.dir }

// PathOf returns the file path a tile is stored at. The mapping is a pure
// function of the tile footprint.
func (s *Store) PathOf(tile footprint.Footprint) string {
	return filepath.Join(s.dir, "tile_"+tile.Key()+".bzt")
}

// Exists reports whether the tile is present on disk.
func (s *Store) Exists(tile footprint.Footprint) bool {
	st, err := os.Stat(s.PathOf(tile))
	return err == nil && st.Mode().IsRegular()
}

// Read loads a tile. A missing file returns os.ErrNotExist; an unreadable
// or corrupt file returns an error wrapping ErrCorrupt and the offending
// file is removed so the next write starts clean.
func (s *Store) Read(tile footprint.Footprint) (*raster.Buffer, error) {
	path := s.PathOf(tile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrCorrupt, path, err)
	}
	defer f.Close()

	buf, err := decodeTile(f)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if !buf.Footprint().Equal(tile) {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %s holds %v, expected %v", ErrCorrupt, path, buf.Footprint(), tile)
	}
	return buf, nil
}

// Write persists a tile atomically: the payload goes to a temp file in the
// same directory, then renames over the final path. On failure the tile
// stays absent.
func (s *Store) Write(tile footprint.Footprint, buf *raster.Buffer) error {
	if !buf.Footprint().Equal(tile) {
		return fmt.Errorf("cachestore: buffer footprint %v does not match tile %v", buf.Footprint(), tile)
	}
	tmp, err := os.CreateTemp(s.dir, ".tile_*.part")
	if err != nil {
		return fmt.Errorf("cachestore: temp file in %s: %w", s.dir, err)
	}
	tmpName := tmp.Name()
	if err := encodeTile(tmp, buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cachestore: write %s: %w", s.PathOf(tile), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cachestore: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.PathOf(tile)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cachestore: publish %s: %w", s.PathOf(tile), err)
	}
	return nil
}

// Remove invalidates a tile. Removing an absent tile is not an error.
func (s *Store) Remove(tile footprint.Footprint) error {
	err := os.Remove(s.PathOf(tile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cachestore: remove %s: %w", s.PathOf(tile), err)
	}
	return nil
}
