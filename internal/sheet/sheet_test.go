package sheet

import (
	"strings"
	"testing"

	"rmloc/internal/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	s.Merge([]store.Scanned{
		{ID: "id-potion", SourceFile: "data/Items.json", Path: "1.name", Text: "Potion"},
		{ID: "id-line", SourceFile: "data/Map002.json", Path: "events.1.pages.0.list.0.parameters.0",
			Text: `Hello \N[1]!`, Context: map[string]string{"event": "1"}},
		{ID: "id-display", SourceFile: "data/Map001.json", Path: "displayName", Text: "Village"},
		{ID: "id-yes-a", SourceFile: "data/Map001.json", Path: "events.1.pages.0.list.2.parameters.0.0",
			Text: "Yes", Context: map[string]string{"event": "1"}},
		{ID: "id-yes-b", SourceFile: "data/Map001.json", Path: "events.2.pages.0.list.0.parameters.0.0",
			Text: "Yes", Context: map[string]string{"event": "2"}},
	})
	return s
}

func TestExportGroupsAndSorts(t *testing.T) {
	s := seedStore(t)
	s.SetTranslation("id-display", "fr", "Village (fr)")

	var sb strings.Builder
	rows, err := (&Exporter{Store: s, Lang: "fr"}).WriteTSV(&sb)
	if err != nil {
		t.Fatalf("WriteTSV: %v", err)
	}
	// 5 entries, "Yes" twice grouped: 4 rows.
	if rows != 4 {
		t.Fatalf("rows = %d, want 4\n%s", rows, sb.String())
	}

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if lines[0] != "id\tcontext\toriginal_text\ttranslation\tcomment" {
		t.Fatalf("header = %q", lines[0])
	}

	// Map rows come first, ordered by map then event; Items last.
	if !strings.Contains(lines[1], "Village") {
		t.Errorf("row 1 = %q, want map 1 display name first", lines[1])
	}
	if !strings.Contains(lines[4], "data/Items.json: 1.name") {
		t.Errorf("row 4 = %q, want items row last", lines[4])
	}

	// Grouped row carries both ids and deduped contexts.
	var yesRow string
	for _, l := range lines[1:] {
		if strings.Contains(l, "\tYes\t") {
			yesRow = l
		}
	}
	if !strings.Contains(yesRow, "id-yes-a; id-yes-b") {
		t.Errorf("yes row ids = %q", yesRow)
	}
	if !strings.Contains(yesRow, "Map 1 Event 1 | Map 1 Event 2") {
		t.Errorf("yes row contexts = %q", yesRow)
	}

	// Existing translation prefilled.
	villageRow := lines[1]
	if !strings.Contains(villageRow, "\tVillage (fr)\t") {
		t.Errorf("translation not prefilled: %q", villageRow)
	}
}

func TestExportEscapesControlText(t *testing.T) {
	s := store.New()
	s.Merge([]store.Scanned{
		{ID: "id-1", SourceFile: "data/Items.json", Path: "1.description", Text: "Line one\nwith \\V[3]"},
	})

	var sb strings.Builder
	if _, err := (&Exporter{Store: s, Lang: "fr"}).WriteTSV(&sb); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), `Line one\nwith \\V[3]`) {
		t.Errorf("escaping wrong:\n%s", sb.String())
	}
}

func TestExportSuggestions(t *testing.T) {
	s := seedStore(t)
	suggest := func(source string) (string, bool) {
		if source == "Potion" {
			return "Potion (mémoire)", true
		}
		return "", false
	}

	var sb strings.Builder
	if _, err := (&Exporter{Store: s, Lang: "fr", Suggest: suggest}).WriteTSV(&sb); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "Potion (mémoire)") {
		t.Errorf("suggestion missing:\n%s", sb.String())
	}
	if !strings.Contains(sb.String(), "suggested from translation memory") {
		t.Errorf("suggestion not marked:\n%s", sb.String())
	}
}

func TestImportRoundTrip(t *testing.T) {
	s := seedStore(t)

	var sb strings.Builder
	if _, err := (&Exporter{Store: s, Lang: "ja"}).WriteTSV(&sb); err != nil {
		t.Fatal(err)
	}

	// Translator fills the translation column of the greeting row.
	edited := strings.ReplaceAll(sb.String(),
		"\tHello \\\\N[1]!\t\t",
		"\tHello \\\\N[1]!\tこんにちは\\\\N[1]！\t")

	var recorded [][2]string
	report, err := Import(strings.NewReader(edited), s, "ja", func(o, tr string) {
		recorded = append(recorded, [2]string{o, tr})
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Applied != 1 {
		t.Fatalf("report = %+v", report)
	}

	orig, tr, ok := s.Translation("id-line", "ja")
	if !ok || orig != `Hello \N[1]!` || tr != `こんにちは\N[1]！` {
		t.Errorf("stored translation = %q %q %v", orig, tr, ok)
	}
	if len(recorded) != 1 || recorded[0][1] != `こんにちは\N[1]！` {
		t.Errorf("recorded pairs = %v", recorded)
	}
}

func TestImportGroupedRowAppliesToAllIDs(t *testing.T) {
	s := seedStore(t)
	sheet := "id\tcontext\toriginal_text\ttranslation\tcomment\n" +
		"id-yes-a; id-yes-b\tMap 1\tYes\tOui\t\n"

	report, err := Import(strings.NewReader(sheet), s, "fr", nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Applied != 2 {
		t.Fatalf("applied = %d, want 2", report.Applied)
	}
	for _, id := range []string{"id-yes-a", "id-yes-b"} {
		if _, tr, ok := s.Translation(id, "fr"); !ok || tr != "Oui" {
			t.Errorf("%s = %q %v", id, tr, ok)
		}
	}
}

func TestImportUnknownIDSkipped(t *testing.T) {
	s := seedStore(t)
	sheet := "id-bogus\tctx\tSomething\tQuelque chose\t\n" +
		"id-potion\tctx\tPotion\tPotion (fr)\t\n"

	report, err := Import(strings.NewReader(sheet), s, "fr", nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Unknown != 1 || report.Applied != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestImportEmptyTranslationIgnored(t *testing.T) {
	s := seedStore(t)
	sheet := "id-potion\tctx\tPotion\t\t\n"

	report, err := Import(strings.NewReader(sheet), s, "fr", nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Empty != 1 || report.Applied != 0 {
		t.Errorf("report = %+v", report)
	}
	if _, _, ok := s.Translation("id-potion", "fr"); ok {
		t.Error("empty translation stored")
	}
}

func TestImportMalformedRow(t *testing.T) {
	s := seedStore(t)
	if _, err := Import(strings.NewReader("only\ttwo\n"), s, "fr", nil); err == nil {
		t.Error("expected error for malformed row")
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	tests := []string{
		"plain",
		"tab\there",
		"newline\nhere",
		`control \N[1] code`,
		`backslash \\ pair`,
		"mixed\t\n\\V[2]\r",
	}
	for _, tt := range tests {
		if got := unescape(escape(tt)); got != tt {
			t.Errorf("round trip %q -> %q", tt, got)
		}
	}
}

// Misc strings ride the same sheet as extracted entries and import back
// through their author-chosen ids.
func TestExportImportMisc(t *testing.T) {
	s := seedStore(t)
	s.MergeMisc([]store.MiscEntry{
		{ID: "credits", Text: "Made by us"},
		{ID: "blank", Text: "   "},
	})

	var sb strings.Builder
	rows, err := (&Exporter{Store: s, Lang: "fr"}).WriteTSV(&sb)
	if err != nil {
		t.Fatalf("WriteTSV: %v", err)
	}
	// 4 entry rows plus the credits row; the blank misc string is skipped.
	if rows != 5 {
		t.Fatalf("rows = %d, want 5\n%s", rows, sb.String())
	}

	var creditsRow string
	for _, l := range strings.Split(sb.String(), "\n") {
		if strings.Contains(l, "Made by us") {
			creditsRow = l
		}
	}
	if !strings.HasPrefix(creditsRow, "credits\t") {
		t.Fatalf("credits row = %q", creditsRow)
	}
	if !strings.Contains(creditsRow, "misc: credits") {
		t.Errorf("credits context = %q", creditsRow)
	}

	edited := strings.ReplaceAll(sb.String(),
		"\tMade by us\t\t",
		"\tMade by us\tFait par nous\t")
	report, err := Import(strings.NewReader(edited), s, "fr", nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Applied != 1 || report.Unknown != 0 {
		t.Fatalf("report = %+v", report)
	}
	if tr, ok := s.MiscTranslation("credits", "fr"); !ok || tr != "Fait par nous" {
		t.Errorf("misc translation = %q %v", tr, ok)
	}
}
