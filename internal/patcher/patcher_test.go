package patcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rmloc/internal/project"
	"rmloc/internal/rules"
	"rmloc/internal/store"
	"rmloc/internal/walker"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, "data", name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func extractAll(t *testing.T, root string) (*store.Store, []project.File) {
	t.Helper()
	files, err := project.Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	st := store.New()
	var fresh []store.Scanned
	for _, f := range files {
		doc, err := project.LoadDocument(f)
		if err != nil {
			t.Fatalf("load %s: %v", f.Rel, err)
		}
		entries, problems := walker.Extract(doc, f.Category, f.Rel)
		if len(problems) != 0 {
			t.Fatalf("problems in %s: %v", f.Rel, problems)
		}
		for _, e := range entries {
			fresh = append(fresh, store.Scanned{
				ID: e.ID, SourceFile: f.Rel, Path: e.Path, Text: e.Text, Context: e.Context,
			})
		}
	}
	st.Merge(fresh)
	return st, files
}

func TestPatchProjectPartial(t *testing.T) {
	mapJSON := `{"displayName":"Village","events":[null,{"id":1,"pages":[{"list":[` +
		`{"code":401,"indent":0,"parameters":[["Hello there."]]}]}]}]}`
	itemsJSON := `[null,{"id":1,"name":"Potion","description":"Heals.","price":50}]`

	root := writeProject(t, map[string]string{
		"Map001.json": mapJSON,
		"Items.json":  itemsJSON,
	})
	st, files := extractAll(t, root)

	// Translate only the map display name and the item name: 2 of 4 entries.
	for id, e := range st.Entries {
		if e.Path == "displayName" {
			st.SetTranslation(id, "fr", "Village (fr)")
		}
		if e.Path == "1.name" {
			st.SetTranslation(id, "fr", "Potion (fr)")
		}
	}

	report := New(st, "fr").PatchProject(context.Background(), files, 2)
	if got := report.Applied(); got != 2 {
		t.Fatalf("applied = %d, want 2: %+v", got, report.Files)
	}
	if len(report.Failed()) != 0 {
		t.Fatalf("failed files: %+v", report.Failed())
	}

	patched, err := os.ReadFile(filepath.Join(root, "data", "Map001.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(patched), `"displayName":"Village (fr)"`) {
		t.Errorf("display name not patched: %s", patched)
	}
	// The untranslated show text is byte-identical.
	if !strings.Contains(string(patched), `{"code":401,"indent":0,"parameters":[["Hello there."]]}`) {
		t.Errorf("untranslated location altered: %s", patched)
	}
}

// Patching with the original text as the translation reproduces the file
// byte for byte.
func TestPatchProjectRoundTrip(t *testing.T) {
	bom := "\xef\xbb\xbf"
	mapJSON := bom + `{"displayName":"Town","events":[null,{"id":1,"pages":[{"list":[` +
		`{"code":401,"indent":0,"parameters":[["Hi ","\\V[2]!"]]}]}]}]}`

	root := writeProject(t, map[string]string{"Map001.json": mapJSON})
	st, files := extractAll(t, root)

	for id, e := range st.Entries {
		st.SetTranslation(id, "en", e.OriginalText)
	}

	report := New(st, "en").PatchProject(context.Background(), files, 1)
	if report.Applied() == 0 {
		t.Fatalf("nothing applied: %+v", report.Files)
	}

	out, err := os.ReadFile(filepath.Join(root, "data", "Map001.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != mapJSON {
		t.Errorf("round trip changed bytes:\n in: %q\nout: %q", mapJSON, out)
	}
}

func TestPatchProjectBadFileDoesNotBlockBatch(t *testing.T) {
	root := writeProject(t, map[string]string{
		"Map001.json": `{"displayName":"Village","events":[]}`,
	})
	st, files := extractAll(t, root)
	for id := range st.Entries {
		st.SetTranslation(id, "fr", "Village (fr)")
	}

	// Corrupt a second file after extraction.
	if err := os.WriteFile(filepath.Join(root, "data", "Items.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	files = append(files, project.File{
		Path:     filepath.Join(root, "data", "Items.json"),
		Rel:      "data/Items.json",
		Category: rules.CategoryItems,
	})

	report := New(st, "fr").PatchProject(context.Background(), files, 1)
	if len(report.Failed()) != 1 {
		t.Fatalf("failed = %+v", report.Failed())
	}
	if report.Applied() != 1 {
		t.Errorf("applied = %d, want 1", report.Applied())
	}
}

func TestPatchSkipsStaleEntries(t *testing.T) {
	mapJSON := `{"displayName":"Village","events":[]}`
	root := writeProject(t, map[string]string{"Map001.json": mapJSON})
	st, files := extractAll(t, root)

	for id := range st.Entries {
		st.SetTranslation(id, "fr", "Village (fr)")
		st.Entries[id].Stale = true
	}

	report := New(st, "fr").PatchProject(context.Background(), files, 1)
	if report.Applied() != 0 {
		t.Fatalf("stale entry applied: %+v", report.Files)
	}

	out, _ := os.ReadFile(filepath.Join(root, "data", "Map001.json"))
	if string(out) != mapJSON {
		t.Error("file modified despite stale entry")
	}
}

// Encoded output of an untouched document matches its input even through the
// full load/patch path when zero entries apply (file must not be rewritten).
func TestPatchNoTranslationsLeavesFileAlone(t *testing.T) {
	mapJSON := `{"displayName":"Village","events":[]}`
	root := writeProject(t, map[string]string{"Map001.json": mapJSON})
	st, files := extractAll(t, root)

	info, err := os.Stat(filepath.Join(root, "data", "Map001.json"))
	if err != nil {
		t.Fatal(err)
	}
	before := info.ModTime()

	report := New(st, "fr").PatchProject(context.Background(), files, 1)
	if report.Applied() != 0 {
		t.Fatalf("applied = %d", report.Applied())
	}

	info, err = os.Stat(filepath.Join(root, "data", "Map001.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(before) {
		t.Error("file rewritten with nothing to apply")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := writeFileAtomic(path, []byte("{}")); err != nil {
		t.Fatalf("writeFileAtomic: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "{}" {
		t.Fatalf("read back: %q %v", got, err)
	}

	// No temp litter left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries", len(entries))
	}
}
