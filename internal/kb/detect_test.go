package kb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/oshiete/internal/models"
)

func TestMatchExtension(t *testing.T) {
	exts := []string{".txt", "md", ".PDF"}
	cases := []struct {
		path string
		want bool
	}{
		{"notes/a.txt", true},
		{"b.MD", true},
		{"c.pdf", true},
		{"d.doc", false},
		{"noext", false},
	}
	for _, c := range cases {
		if got := matchExtension(c.path, exts); got != c.want {
			t.Errorf("matchExtension(%q) = %v, want %v", c.path, got, c.want)
		}
	}
	if matchExtension("a.txt", nil) {
		t.Error("empty extension list should match nothing")
	}
}

func TestDetectChanges_classification(t *testing.T) {
	dir := t.TempDir()
	newFile := filepath.Join(dir, "new.txt")
	modFile := filepath.Join(dir, "sub", "mod.txt")
	sameFile := filepath.Join(dir, "same.txt")
	if err := os.MkdirAll(filepath.Dir(modFile), 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{newFile, modFile, sameFile} {
		if err := os.WriteFile(p, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	// excluded by extension
	if err := os.WriteFile(filepath.Join(dir, "skip.bin"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	sameInfo, err := os.Stat(sameFile)
	if err != nil {
		t.Fatal(err)
	}
	meta := map[string]models.FileMeta{
		modFile:  {MTime: time.Now().Add(-time.Hour).UnixNano()},
		sameFile: {MTime: sameInfo.ModTime().UnixNano()},
	}

	cs, err := detectChanges(dir, []string{".txt"}, meta)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs.changes) != 3 {
		t.Fatalf("len(changes) = %d, want 3", len(cs.changes))
	}
	classes := make(map[string]fileClass)
	for _, ch := range cs.changes {
		classes[ch.relPath] = ch.class
	}
	if classes["new.txt"] != classNew {
		t.Errorf("new.txt class = %v, want new", classes["new.txt"])
	}
	if classes[filepath.Join("sub", "mod.txt")] != classModified {
		t.Errorf("sub/mod.txt class = %v, want modified", classes[filepath.Join("sub", "mod.txt")])
	}
	if classes["same.txt"] != classUnchanged {
		t.Errorf("same.txt class = %v, want unchanged", classes["same.txt"])
	}
	if _, ok := cs.present["skip.bin"]; ok {
		t.Error("skip.bin should not be in present set")
	}
	if _, ok := cs.present["new.txt"]; !ok {
		t.Error("new.txt missing from present set")
	}
}

func TestDetectChanges_missingRoot(t *testing.T) {
	if _, err := detectChanges(filepath.Join(t.TempDir(), "nope"), []string{".txt"}, nil); err == nil {
		t.Error("expected error for missing root")
	}
}
