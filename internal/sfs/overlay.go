package sfs

import "github.com/spf13/afero"

// NewOverlay returns a fresh copy-on-write view of the shared tree: reads
// fall through to the immutable base, writes land only in a private
// in-memory layer that is discarded when the session ends. This is the
// "per-session overlay of SFS... never writing through to the shared
// tree" spec.md §9 calls for; the teacher's mutating commands (touch, rm,
// mkdir, mv, cp) never actually mutated anything, so this composition is
// new functionality grounded on afero's own documented CopyOnWriteFs
// pattern rather than on teacher code.
func (f *FS) NewOverlay() afero.Fs {
	return afero.NewCopyOnWriteFs(f.base, afero.NewMemMapFs())
}
