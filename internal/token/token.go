// Package token splits message text into literal runs and opaque control
// tokens (engine escape codes such as \V[1], \C[2], \G and line breaks) so
// that translation only ever touches the literal runs.
package token

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind classifies a token.
type Kind int

const (
	// Literal is translatable text.
	Literal Kind = iota
	// Control is an opaque escape code copied through translation verbatim.
	Control
	// Newline is a line break, distinguished so joined paragraphs can be
	// re-split without treating the break as translatable text.
	Newline
)

// Token is one segment of a tokenized string.
type Token struct {
	Kind Kind
	Text string
}

// patterns to detect control codes in message strings. Order matters only for
// equal start positions; overlaps keep the longest match.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\\[A-Za-z]+\[\d+\]`), // \V[1], \N[2], \C[3], plugin codes with an argument
	regexp.MustCompile(`\\[A-Za-z]+`),        // \G and other bare letter codes
	regexp.MustCompile(`\\[\\{}$.|!><^]`),    // punctuation escapes: \\ \{ \} \$ \. \| \! \> \< \^
	regexp.MustCompile(`%\d+`),               // %1-style substitutions in system term messages
	regexp.MustCompile(`\n`),
}

type match struct {
	start, end int
	value      string
}

// Tokenize splits raw into an alternating sequence of literal and control
// tokens. Detokenize(Tokenize(x)) == x for every x.
func Tokenize(raw string) []Token {
	var all []match
	for _, p := range patterns {
		for _, loc := range p.FindAllStringIndex(raw, -1) {
			all = append(all, match{start: loc[0], end: loc[1], value: raw[loc[0]:loc[1]]})
		}
	}

	if len(all) == 0 {
		if raw == "" {
			return nil
		}
		return []Token{{Kind: Literal, Text: raw}}
	}

	// Sort by position, longest first on ties, then drop overlaps.
	sort.Slice(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		return all[i].end-all[i].start > all[j].end-all[j].start
	})

	var filtered []match
	lastEnd := -1
	for _, m := range all {
		if m.start >= lastEnd {
			filtered = append(filtered, m)
			lastEnd = m.end
		}
	}

	var toks []Token
	pos := 0
	for _, m := range filtered {
		if m.start > pos {
			toks = append(toks, Token{Kind: Literal, Text: raw[pos:m.start]})
		}
		kind := Control
		if m.value == "\n" {
			kind = Newline
		}
		toks = append(toks, Token{Kind: kind, Text: m.value})
		pos = m.end
	}
	if pos < len(raw) {
		toks = append(toks, Token{Kind: Literal, Text: raw[pos:]})
	}

	return toks
}

// Detokenize reassembles the original string from a token sequence.
func Detokenize(toks []Token) string {
	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// Controls returns the control-token texts of s in order. Newlines are not
// included: a translation is free to break lines differently, but may never
// add or drop an escape code.
func Controls(s string) []string {
	var out []string
	for _, t := range Tokenize(s) {
		if t.Kind == Control {
			out = append(out, t.Text)
		}
	}
	return out
}

// SetMismatchError reports control tokens invented or dropped by a translation.
type SetMismatchError struct {
	Added   []string
	Removed []string
}

func (e *SetMismatchError) Error() string {
	var parts []string
	if len(e.Added) > 0 {
		parts = append(parts, "added "+strings.Join(e.Added, " "))
	}
	if len(e.Removed) > 0 {
		parts = append(parts, "removed "+strings.Join(e.Removed, " "))
	}
	return "control token mismatch: " + strings.Join(parts, ", ")
}

// Validate checks that translated carries exactly the control-token multiset
// of original. Reordering is allowed; inventing or dropping tokens is not.
func Validate(original, translated string) error {
	counts := make(map[string]int)
	for _, c := range Controls(original) {
		counts[c]++
	}
	for _, c := range Controls(translated) {
		counts[c]--
	}

	var mismatch SetMismatchError
	for tok, n := range counts {
		for ; n > 0; n-- {
			mismatch.Removed = append(mismatch.Removed, tok)
		}
		for ; n < 0; n++ {
			mismatch.Added = append(mismatch.Added, tok)
		}
	}
	if len(mismatch.Added) == 0 && len(mismatch.Removed) == 0 {
		return nil
	}
	sort.Strings(mismatch.Added)
	sort.Strings(mismatch.Removed)
	return &mismatch
}

// SplitLines distributes a translated paragraph back over the original number
// of display lines. Explicit newlines in the translation win; otherwise the
// split anchors on the control token that opened each original line, which
// keeps tokens in their relative positions. Lines that cannot be anchored
// come back empty so the output always has len(originalLines) entries.
func SplitLines(translated string, originalLines []string) []string {
	n := len(originalLines)
	if n <= 1 {
		return []string{translated}
	}

	if parts := strings.Split(translated, "\n"); len(parts) >= n {
		if len(parts) == n {
			return parts
		}
		// More breaks than lines: overflow stays on the last line.
		merged := make([]string, n)
		copy(merged, parts[:n-1])
		merged[n-1] = strings.Join(parts[n-1:], "\n")
		return merged
	}

	// Byte offsets of each control occurrence in the translation.
	type occurrence struct {
		text string
		pos  int
	}
	var occs []occurrence
	pos := 0
	for _, t := range Tokenize(translated) {
		if t.Kind == Control {
			occs = append(occs, occurrence{text: t.Text, pos: pos})
		}
		pos += len(t.Text)
	}

	// For each line boundary find the matching occurrence of the anchor
	// token, counting occurrences consumed by earlier lines.
	cuts := make([]int, n-1)
	seen := make(map[string]int)
	for i, line := range originalLines {
		toks := Tokenize(line)
		if i > 0 {
			cuts[i-1] = -1
			if len(toks) > 0 && toks[0].Kind == Control {
				anchor := toks[0].Text
				ord := seen[anchor]
				count := 0
				for _, o := range occs {
					if o.text != anchor {
						continue
					}
					if count == ord {
						cuts[i-1] = o.pos
						break
					}
					count++
				}
			}
		}
		for _, t := range toks {
			if t.Kind == Control {
				seen[t.Text]++
			}
		}
	}

	out := make([]string, n)
	current := 0
	segStart := 0
	for i := 1; i < n; i++ {
		cut := cuts[i-1]
		if cut >= segStart {
			out[current] = translated[segStart:cut]
			current = i
			segStart = cut
		}
	}
	out[current] = translated[segStart:]
	return out
}

// JoinLines concatenates display lines into one translatable paragraph.
func JoinLines(lines []string) string {
	return strings.Join(lines, "")
}

// Describe renders a token sequence for diagnostics.
func Describe(toks []Token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		switch t.Kind {
		case Control:
			parts[i] = fmt.Sprintf("ctl(%s)", t.Text)
		case Newline:
			parts[i] = "nl"
		default:
			parts[i] = fmt.Sprintf("lit(%s)", t.Text)
		}
	}
	return strings.Join(parts, " ")
}
