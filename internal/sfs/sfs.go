// Package sfs implements the Simulated Filesystem: an immutable in-memory
// tree shared by every session, plus a per-session copy-on-write overlay
// constructor so mutating shell commands never touch the shared tree.
//
// Loading the tree from an actual base.tar.gz archive is an external
// collaborator per spec.md's Non-goals; this package seeds the same shape
// from a static table and has no archive-loading entry point.
package sfs

import (
	"fmt"

	"github.com/spf13/afero"
)

// FS holds the shared, read-only base tree. No method on FS ever mutates
// base — per-session state lives entirely in the overlays NewOverlay hands
// out.
type FS struct {
	base afero.Fs
}

// New builds the shared tree from the built-in seed data.
func New() (*FS, error) {
	base := afero.NewMemMapFs()
	if err := seed(base); err != nil {
		return nil, fmt.Errorf("seeding simulated filesystem: %w", err)
	}
	return &FS{base: base}, nil
}

func seed(fs afero.Fs) error {
	for dir, entries := range dirListing {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
		for _, name := range entries {
			p := joinPath(dir, name)
			if _, ok := fileContent[p]; ok {
				continue // written below with real content
			}
			if isKnownDir(p) {
				continue // will be created by its own dirListing entry
			}
			if err := afero.WriteFile(fs, p, []byte{}, 0644); err != nil {
				return fmt.Errorf("seed placeholder %s: %w", p, err)
			}
		}
	}
	for p, content := range fileContent {
		if err := afero.WriteFile(fs, p, []byte(content), 0644); err != nil {
			return fmt.Errorf("seed file %s: %w", p, err)
		}
	}
	return nil
}

func isKnownDir(p string) bool {
	_, ok := dirListing[p]
	return ok
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// Base returns the shared read-only tree. Callers must never write
// through it directly; use NewOverlay for any session that may mutate.
func (f *FS) Base() afero.Fs {
	return f.base
}
