// Package store holds the persisted collection of extracted strings: the
// single source of truth shared by extraction, sheet export/import, and
// patching. One JSON document, loaded at command start, saved atomically at
// the end, no concurrent writers.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"rmloc/internal/identity"
)

// Entry is one translatable unit extracted from a game file.
type Entry struct {
	SourceFile   string            `json:"source_file"`
	Path         string            `json:"path"`
	OriginalText string            `json:"original_text"`
	Translations map[string]string `json:"translations,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	// Stale marks entries whose source text changed after translation; the
	// translation is kept for re-review but the patcher will not apply it.
	Stale bool `json:"stale,omitempty"`
	// Orphaned marks entries no longer produced by extraction. They are
	// surfaced for manual cleanup, never deleted automatically.
	Orphaned bool `json:"orphaned,omitempty"`
}

// MiscEntry is a user-authored string that does not come from game files.
// The source text is round-tripped verbatim; the misc file's author owns it.
// Translations travel through the sheet like entry translations and are
// patched back into the misc file by id.
type MiscEntry struct {
	ID           string            `json:"id"`
	Text         string            `json:"text"`
	Translations map[string]string `json:"translations,omitempty"`
}

// Store is the persisted document.
type Store struct {
	Entries map[string]*Entry `json:"entries"`
	Misc    []MiscEntry       `json:"misc,omitempty"`
}

// New creates an empty store.
func New() *Store {
	return &Store{Entries: make(map[string]*Entry)}
}

// Load reads a store document from disk. A missing file is reported via
// os.IsNotExist so callers can choose to start fresh.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse strings file %s: %w", path, err)
	}
	if s.Entries == nil {
		s.Entries = make(map[string]*Entry)
	}
	return s, nil
}

// LoadOrNew reads a store document, or creates an empty one if none exists.
func LoadOrNew(path string) (*Store, error) {
	s, err := Load(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	return s, err
}

// Save writes the store atomically: a temp file in the same directory is
// fully written and fsynced, then renamed over the target, so an interrupted
// write can never leave a corrupt strings file behind.
func (s *Store) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp strings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		tmp.Close()
		return fmt.Errorf("encode strings file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync strings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close strings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace strings file: %w", err)
	}
	return nil
}

// Scanned is one freshly extracted location handed to Merge.
type Scanned struct {
	ID         string
	SourceFile string
	Path       string
	Text       string
	Context    map[string]string
}

// MergeReport summarizes what a re-extraction did to the store.
type MergeReport struct {
	Added     []string
	Unchanged int
	Stale     []string
	Orphaned  []string
	// Moved pairs an orphaned id with the new id that carries the same
	// original text; the translation was carried over.
	Moved [][2]string
}

// Merge folds a fresh full-project scan into the store.
//
// Policy (deliberately conservative, nothing is silently discarded):
// unchanged entries keep their translations; entries whose original text
// changed are flagged stale with the translation retained for re-review;
// new ids are added; ids the scan no longer produces are flagged orphaned.
// Finally, orphaned and added entries with identical original text are
// paired as moves (index shifts after an insertion), carrying translations
// over and retiring the orphan.
func (s *Store) Merge(fresh []Scanned) MergeReport {
	var report MergeReport

	seen := make(map[string]bool, len(fresh))
	for _, f := range fresh {
		seen[f.ID] = true
		existing, ok := s.Entries[f.ID]
		if !ok {
			s.Entries[f.ID] = &Entry{
				SourceFile:   f.SourceFile,
				Path:         f.Path,
				OriginalText: f.Text,
				Context:      f.Context,
			}
			report.Added = append(report.Added, f.ID)
			continue
		}

		existing.SourceFile = f.SourceFile
		existing.Path = f.Path
		existing.Context = f.Context
		existing.Orphaned = false

		if existing.OriginalText == f.Text {
			report.Unchanged++
			continue
		}
		existing.OriginalText = f.Text
		if len(existing.Translations) > 0 {
			existing.Stale = true
		}
		report.Stale = append(report.Stale, f.ID)
	}

	for id, e := range s.Entries {
		if !seen[id] && !e.Orphaned {
			e.Orphaned = true
			report.Orphaned = append(report.Orphaned, id)
		}
	}

	report.Moved = s.resolveMoves(report.Added)
	sort.Strings(report.Added)
	sort.Strings(report.Stale)
	sort.Strings(report.Orphaned)
	return report
}

// resolveMoves pairs orphaned entries with freshly added ones by exact
// content fingerprint, carrying translations to the new location. Only
// unambiguous one-to-one matches are resolved; anything fuzzier is left for
// the operator rather than risking a mis-attributed translation.
func (s *Store) resolveMoves(added []string) [][2]string {
	orphansByPrint := make(map[string][]string)
	for id, e := range s.Entries {
		if e.Orphaned {
			fp := identity.Fingerprint(e.OriginalText)
			orphansByPrint[fp] = append(orphansByPrint[fp], id)
		}
	}

	addedByPrint := make(map[string][]string)
	for _, id := range added {
		fp := identity.Fingerprint(s.Entries[id].OriginalText)
		addedByPrint[fp] = append(addedByPrint[fp], id)
	}

	var moved [][2]string
	for fp, orphanIDs := range orphansByPrint {
		newIDs := addedByPrint[fp]
		if len(orphanIDs) != 1 || len(newIDs) != 1 {
			continue
		}
		orphan := s.Entries[orphanIDs[0]]
		target := s.Entries[newIDs[0]]
		if len(orphan.Translations) > 0 {
			target.Translations = orphan.Translations
		}
		delete(s.Entries, orphanIDs[0])
		moved = append(moved, [2]string{orphanIDs[0], newIDs[0]})
	}

	sort.Slice(moved, func(i, j int) bool { return moved[i][0] < moved[j][0] })
	return moved
}

// MergeMisc upserts the user-authored misc strings by id, preserving entries
// the file no longer lists.
func (s *Store) MergeMisc(entries []MiscEntry) {
	index := make(map[string]int, len(s.Misc))
	for i, m := range s.Misc {
		index[m.ID] = i
	}
	for _, m := range entries {
		if i, ok := index[m.ID]; ok {
			s.Misc[i].Text = m.Text
			continue
		}
		index[m.ID] = len(s.Misc)
		s.Misc = append(s.Misc, m)
	}
}

// SetTranslation records a translation for an entry or a misc string. A
// translation recorded against the current original text is the re-review,
// so it clears a stale flag. It reports false for unknown ids so importers
// can surface bad rows without failing the batch.
func (s *Store) SetTranslation(id, lang, text string) bool {
	e, ok := s.Entries[id]
	if !ok {
		return s.setMiscTranslation(id, lang, text)
	}
	if e.Translations == nil {
		e.Translations = make(map[string]string)
	}
	e.Translations[lang] = text
	e.Stale = false
	return true
}

func (s *Store) miscAt(id string) *MiscEntry {
	for i := range s.Misc {
		if s.Misc[i].ID == id {
			return &s.Misc[i]
		}
	}
	return nil
}

func (s *Store) setMiscTranslation(id, lang, text string) bool {
	m := s.miscAt(id)
	if m == nil {
		return false
	}
	if m.Translations == nil {
		m.Translations = make(map[string]string)
	}
	m.Translations[lang] = text
	return true
}

// MiscTranslation returns the translation of a misc string for a language.
func (s *Store) MiscTranslation(id, lang string) (string, bool) {
	m := s.miscAt(id)
	if m == nil {
		return "", false
	}
	t, ok := m.Translations[lang]
	return t, ok
}

// Translation returns the translation of an entry for a language. Stale
// entries report no translation: their text awaits re-review.
func (s *Store) Translation(id, lang string) (original, translated string, ok bool) {
	e, exists := s.Entries[id]
	if !exists || e.Stale {
		return "", "", false
	}
	t, exists := e.Translations[lang]
	if !exists {
		return "", "", false
	}
	return e.OriginalText, t, true
}

// LanguageCount reports how many entries and misc strings carry a
// translation for lang.
func (s *Store) LanguageCount(lang string) int {
	n := 0
	for _, e := range s.Entries {
		if _, ok := e.Translations[lang]; ok {
			n++
		}
	}
	for i := range s.Misc {
		if _, ok := s.Misc[i].Translations[lang]; ok {
			n++
		}
	}
	return n
}

// SortedIDs returns entry ids in stable order for deterministic output.
func (s *Store) SortedIDs() []string {
	ids := make([]string, 0, len(s.Entries))
	for id := range s.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
