// Package sheet is the spreadsheet boundary: it turns the store into a
// translator-editable TSV and folds an edited TSV back in. Entries sharing
// identical original text are grouped on one row so the translator writes
// each string once; the row carries every id it stands for.
package sheet

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"rmloc/internal/store"

	"github.com/rs/zerolog/log"
)

var header = []string{"id", "context", "original_text", "translation", "comment"}

// SuggestFunc supplies a previously confirmed translation for identical
// source text (the translation memory hook). ok is false when none exists.
type SuggestFunc func(source string) (string, bool)

// Exporter writes the translator sheet for one language.
type Exporter struct {
	Store *store.Store
	Lang  string
	// Suggest, when set, prefills untranslated rows with a remembered
	// translation of the same source text for review.
	Suggest SuggestFunc
}

type row struct {
	ids      []string
	contexts []string
	original string
	trans    string
	comment  string
	sortKey  int
}

var mapRelPattern = regexp.MustCompile(`Map(\d+)\.json$`)

// WriteTSV writes the sheet and returns the number of data rows.
func (e *Exporter) WriteTSV(w io.Writer) (int, error) {
	groups := make(map[string]*row)
	var order []string

	for _, id := range e.Store.SortedIDs() {
		entry := e.Store.Entries[id]
		original := entry.OriginalText
		if strings.TrimSpace(original) == "" {
			continue
		}

		g, ok := groups[original]
		if !ok {
			g = &row{original: original, sortKey: -1}
			if t, exists := entry.Translations[e.Lang]; exists {
				g.trans = t
			}
			groups[original] = g
			order = append(order, original)
		}
		g.ids = append(g.ids, id)
		g.contexts = append(g.contexts, describeContext(entry))
		if k := mapSortKey(entry); k >= 0 && (g.sortKey < 0 || k < g.sortKey) {
			g.sortKey = k
		}
		if entry.Stale && g.comment == "" {
			g.comment = "stale: source text changed, re-review"
		}
		if entry.Orphaned && g.comment == "" {
			g.comment = "orphaned: no longer extracted"
		}
	}

	// Misc strings ride the same sheet; their ids are author-chosen, so the
	// import side resolves them the same way as entry ids.
	for i := range e.Store.Misc {
		m := &e.Store.Misc[i]
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		g, ok := groups[m.Text]
		if !ok {
			g = &row{original: m.Text, sortKey: -1}
			if t, exists := m.Translations[e.Lang]; exists {
				g.trans = t
			}
			groups[m.Text] = g
			order = append(order, m.Text)
		}
		g.ids = append(g.ids, m.ID)
		g.contexts = append(g.contexts, "misc: "+m.ID)
	}

	// Map rows first in play order, everything else after in stable order.
	sort.SliceStable(order, func(i, j int) bool {
		a, b := groups[order[i]], groups[order[j]]
		switch {
		case a.sortKey >= 0 && b.sortKey >= 0:
			return a.sortKey < b.sortKey
		case a.sortKey >= 0:
			return true
		default:
			return false
		}
	})

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, strings.Join(header, "\t"))

	for _, original := range order {
		g := groups[original]
		if g.trans == "" && e.Suggest != nil {
			if s, ok := e.Suggest(original); ok {
				g.trans = s
				if g.comment == "" {
					g.comment = "suggested from translation memory"
				}
			}
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%s\n",
			strings.Join(g.ids, "; "),
			escape(strings.Join(dedupeContexts(g.contexts), " | ")),
			escape(g.original),
			escape(g.trans),
			escape(g.comment),
		)
	}

	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("write sheet: %w", err)
	}
	return len(order), nil
}

// describeContext renders a human hint for the translator.
func describeContext(e *store.Entry) string {
	if m := mapRelPattern.FindStringSubmatch(e.SourceFile); m != nil {
		mapID := strings.TrimLeft(m[1], "0")
		if mapID == "" {
			mapID = "0"
		}
		if ev, ok := e.Context["event"]; ok {
			return fmt.Sprintf("Map %s Event %s", mapID, ev)
		}
		return fmt.Sprintf("Map %s Display Name", mapID)
	}
	return e.SourceFile + ": " + e.Path
}

// mapSortKey orders map rows by (map, event) so the sheet follows play
// order; -1 means not a map row.
func mapSortKey(e *store.Entry) int {
	m := mapRelPattern.FindStringSubmatch(e.SourceFile)
	if m == nil {
		return -1
	}
	mapID, _ := strconv.Atoi(m[1])
	eventID := 0
	if ev, ok := e.Context["event"]; ok {
		eventID, _ = strconv.Atoi(ev)
	}
	return mapID*10000 + eventID
}

func dedupeContexts(contexts []string) []string {
	counts := make(map[string]int)
	var order []string
	for _, c := range contexts {
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}
	for i, c := range order {
		if counts[c] > 1 {
			order[i] = fmt.Sprintf("%s (×%d)", c, counts[c])
		}
	}
	return order
}

// ImportReport counts what an import did.
type ImportReport struct {
	Applied int
	Unknown int
	Empty   int
}

// Import reads an edited sheet and records translations for lang. Rows with
// unknown ids are reported and skipped; the sheet format itself is the
// exporter's contract and malformed rows are rejected, never repaired.
// record, when set, is called once per applied (original, translated) pair.
func Import(r io.Reader, st *store.Store, lang string, record func(original, translated string)) (ImportReport, error) {
	var report ImportReport

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := sc.Text()
		if lineNum == 1 && strings.HasPrefix(line, header[0]+"\t") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 4 {
			return report, fmt.Errorf("line %d: expected %d tab-separated columns, got %d", lineNum, len(header), len(cols))
		}

		translated := unescape(cols[3])
		if strings.TrimSpace(translated) == "" {
			report.Empty++
			continue
		}
		original := unescape(cols[2])

		for _, id := range strings.Split(cols[0], ";") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if !st.SetTranslation(id, lang, translated) {
				log.Warn().Str("id", id).Int("line", lineNum).Msg("Unknown id in sheet, skipped")
				report.Unknown++
				continue
			}
			report.Applied++
		}
		if record != nil {
			record(original, translated)
		}
	}
	if err := sc.Err(); err != nil {
		return report, fmt.Errorf("read sheet: %w", err)
	}
	return report, nil
}

// escape keeps multi-line text on one TSV row.
func escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\t", "\\t")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	return s
}

func unescape(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 't':
			sb.WriteByte('\t')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case '\\':
			sb.WriteByte('\\')
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
