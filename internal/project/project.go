// Package project discovers and loads the data files of a game project.
// The engine itself never decides which files exist; everything downstream
// receives the ordered file list produced here.
package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"rmloc/internal/jsondoc"
	"rmloc/internal/rules"
	"rmloc/internal/store"

	"github.com/rs/zerolog/log"
)

// MiscFileName is the user-authored misc strings file, looked up in the
// project's data directory and at the project root.
const MiscFileName = "rmloc_misc.json"

// File is one discovered source file.
type File struct {
	// Path is the absolute on-disk location.
	Path string
	// Rel is the project-relative path used for provenance and id scoping.
	Rel string
	// Category selects the location rules that apply.
	Category rules.Category
}

// Discover lists the recognized data files under <root>/data in a stable
// order. Files with no category (tilesets, animations, save data) are not
// source files and are skipped.
func Discover(root string) ([]File, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}

	dataDir := filepath.Join(root, "data")
	info, err := os.Stat(dataDir)
	if err != nil {
		return nil, fmt.Errorf("stat data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dataDir)
	}

	dirEntries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var files []File
	for _, de := range dirEntries { // ReadDir returns sorted entries
		if de.IsDir() {
			continue
		}
		cat, ok := rules.DetectCategory(de.Name())
		if !ok {
			continue
		}
		files = append(files, File{
			Path:     filepath.Join(dataDir, de.Name()),
			Rel:      filepath.ToSlash(filepath.Join("data", de.Name())),
			Category: cat,
		})
	}

	log.Info().Int("count", len(files)).Str("root", root).Msg("Discovered data files")
	return files, nil
}

// LoadDocument reads and parses one source file.
func LoadDocument(f File) (*jsondoc.Document, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Rel, err)
	}
	doc, err := jsondoc.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Rel, err)
	}
	return doc, nil
}

// miscDocument mirrors the misc strings file layout.
type miscDocument struct {
	MiscStrings []store.MiscEntry `json:"misc_strings"`
}

// miscCandidates lists where the misc strings file may live, in lookup order.
func miscCandidates(root string) []string {
	return []string{
		filepath.Join(root, "data", MiscFileName),
		filepath.Join(root, MiscFileName),
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadMisc reads the user-authored misc strings file if present. The second
// return value reports whether a file was found at all.
func LoadMisc(root string) ([]store.MiscEntry, bool, error) {
	for _, candidate := range miscCandidates(root) {
		data, err := os.ReadFile(candidate)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, true, fmt.Errorf("read misc strings: %w", err)
		}
		data = bytes.TrimPrefix(data, utf8BOM)

		var doc miscDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, true, fmt.Errorf("parse misc strings: %w", err)
		}
		return doc.MiscStrings, true, nil
	}
	return nil, false, nil
}

// PatchMisc rewrites the misc strings file in place, replacing the text of
// each id the lookup can translate. Untranslated ids keep their text. The
// second return value reports whether a misc file was found at all.
func PatchMisc(root string, lookup func(id string) (string, bool)) (int, bool, error) {
	for _, candidate := range miscCandidates(root) {
		data, err := os.ReadFile(candidate)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, true, fmt.Errorf("read misc strings: %w", err)
		}
		hadBOM := bytes.HasPrefix(data, utf8BOM)
		data = bytes.TrimPrefix(data, utf8BOM)

		var doc miscDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return 0, true, fmt.Errorf("parse misc strings: %w", err)
		}

		applied := 0
		for i := range doc.MiscStrings {
			if t, ok := lookup(doc.MiscStrings[i].ID); ok {
				doc.MiscStrings[i].Text = t
				doc.MiscStrings[i].Translations = nil
				applied++
			}
		}
		if applied == 0 {
			return 0, true, nil
		}

		var buf bytes.Buffer
		if hadBOM {
			buf.Write(utf8BOM)
		}
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return 0, true, fmt.Errorf("encode misc strings: %w", err)
		}

		if err := writeFileAtomic(candidate, buf.Bytes()); err != nil {
			return 0, true, fmt.Errorf("write misc strings: %w", err)
		}
		return applied, true, nil
	}
	return 0, false, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}
