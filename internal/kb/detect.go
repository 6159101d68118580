package kb

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/hyperjump/oshiete/internal/models"
)

type fileClass int

const (
	classUnchanged fileClass = iota
	classNew
	classModified
)

// fileChange is one present file with its classification against the metadata store.
type fileChange struct {
	absPath string
	relPath string
	mtime   int64
	class   fileClass
}

// changeSet is the result of classifying a directory tree. present holds the
// relative paths of every currently-present matching file; documents whose
// identity is not in it are removed.
type changeSet struct {
	changes []fileChange
	present map[string]struct{}
}

// detectChanges enumerates all files under root matching exts and classifies
// each against meta: new when no entry exists for its absolute path, modified
// when the stored mtime differs, unchanged otherwise. Pure classification; no
// side effects.
func detectChanges(root string, exts []string, meta map[string]models.FileMeta) (*changeSet, error) {
	cs := &changeSet{present: make(map[string]struct{})}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !matchExtension(path, exts) {
			return nil
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(root, absPath)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mtime := info.ModTime().UnixNano()

		class := classUnchanged
		if entry, ok := meta[absPath]; !ok {
			class = classNew
		} else if entry.MTime != mtime {
			class = classModified
		}
		cs.changes = append(cs.changes, fileChange{
			absPath: absPath,
			relPath: relPath,
			mtime:   mtime,
			class:   class,
		})
		cs.present[relPath] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// matchExtension reports whether path's extension is in extensions
// (case-insensitive, leading dot optional). Empty extensions matches nothing.
func matchExtension(path string, extensions []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return false
	}
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
