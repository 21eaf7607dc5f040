// Package walker traverses parsed game data trees. One traversal serves both
// directions: extraction visits every matched location and emits entries,
// patch revisits the same locations (producing the same ids by construction)
// and substitutes translated text in place, leaving every sibling byte alone.
package walker

import (
	"encoding/json"
	"fmt"
	"strconv"

	"rmloc/internal/identity"
	"rmloc/internal/jsondoc"
	"rmloc/internal/rules"
	"rmloc/internal/textutil"
	"rmloc/internal/token"
)

// SchemaMismatchError reports a node whose shape does not match its rule.
type SchemaMismatchError struct {
	Path string
	Want string
	Got  any
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch at %s: want %s, got %T", e.Path, e.Want, e.Got)
}

// StaleOriginalError reports a location whose current text no longer matches
// the original recorded at extraction time. Applying the translation anyway
// could silently overwrite changed intent, so the patcher refuses.
type StaleOriginalError struct {
	Path    string
	Stored  string
	Current string
}

func (e *StaleOriginalError) Error() string {
	return fmt.Sprintf("stale original at %s: source text changed since extraction", e.Path)
}

// Entry is one extracted translatable unit.
type Entry struct {
	ID      string
	Path    string
	Text    string
	Context map[string]string
}

// Problem records a location skipped during a walk, with the reason.
type Problem struct {
	Path string
	Err  error
}

// site is one matched location: its current text plus a writer that rewrites
// exactly that payload.
type site struct {
	path    string
	context map[string]string
	text    string
	lines   []string // set for joined-line sites
	write   func(translated string)
}

type walkState struct {
	cat      rules.Category
	visit    func(s site)
	problems []Problem
}

func (w *walkState) mismatch(path, want string, got any) {
	w.problems = append(w.problems, Problem{Path: path, Err: &SchemaMismatchError{Path: path, Want: want, Got: got}})
}

// Extract walks the document and returns entries in deterministic order,
// together with any locations skipped for shape mismatches. source is the
// file's project-relative path; it scopes the ids so two files of the same
// category never collide.
func Extract(doc *jsondoc.Document, cat rules.Category, source string) ([]Entry, []Problem) {
	scope := identity.Scope(string(cat), source)
	var entries []Entry
	problems := run(doc, cat, func(s site) {
		entries = append(entries, Entry{
			ID:      identity.ID(scope, s.path),
			Path:    s.path,
			Text:    s.text,
			Context: s.context,
		})
	})
	return entries, problems
}

// Lookup resolves a location id to its recorded original text and the
// translation for the target language. ok is false when the store has no
// translation to apply there.
type Lookup func(id string) (original, translated string, ok bool)

// PatchStats summarizes one document's patch walk.
type PatchStats struct {
	Applied   int
	Missing   int
	Conflicts []Problem
}

// Patch re-walks the document with the same rules and path logic as Extract,
// guaranteeing the same ids, and applies translations at matched locations.
// Validation failures skip the single location and are reported; they never
// abort the rest of the document.
func Patch(doc *jsondoc.Document, cat rules.Category, source string, lookup Lookup) PatchStats {
	scope := identity.Scope(string(cat), source)
	var stats PatchStats
	problems := run(doc, cat, func(s site) {
		original, translated, ok := lookup(identity.ID(scope, s.path))
		if !ok {
			stats.Missing++
			return
		}
		if s.text != original {
			stats.Conflicts = append(stats.Conflicts, Problem{
				Path: s.path,
				Err:  &StaleOriginalError{Path: s.path, Stored: original, Current: s.text},
			})
			return
		}
		if err := token.Validate(original, translated); err != nil {
			stats.Conflicts = append(stats.Conflicts, Problem{Path: s.path, Err: err})
			return
		}
		s.write(translated)
		stats.Applied++
	})
	stats.Conflicts = append(stats.Conflicts, problems...)
	return stats
}

func run(doc *jsondoc.Document, cat rules.Category, visit func(site)) []Problem {
	w := &walkState{cat: cat, visit: visit}
	switch cat {
	case rules.CategoryMap:
		w.walkMap(doc.Root)
	case rules.CategorySystem:
		w.walkSystem(doc.Root)
	case rules.CategoryCommonEvents:
		w.walkCommonEvents(doc.Root)
	default:
		w.walkDatabase(doc.Root)
	}
	return w.problems
}

// fieldSite visits a plain string field of an object. Empty fields carry
// nothing to translate and are not matched.
func (w *walkState) fieldSite(o *jsondoc.Object, key, path string, ctx map[string]string) {
	v, ok := o.Get(key)
	if !ok {
		return
	}
	s, ok := v.(string)
	if !ok {
		if v != nil {
			w.mismatch(path, "string", v)
		}
		return
	}
	if !textutil.HasText(s) {
		return
	}
	w.visit(site{
		path:    path,
		context: ctx,
		text:    s,
		write:   func(tr string) { o.Set(key, tr) },
	})
}

// slotSite visits one string element of an array.
func (w *walkState) slotSite(arr *jsondoc.Array, idx int, path string, ctx map[string]string) {
	v := arr.Items[idx]
	s, ok := v.(string)
	if !ok {
		if v != nil {
			w.mismatch(path, "string", v)
		}
		return
	}
	if !textutil.HasText(s) {
		return
	}
	w.visit(site{
		path:    path,
		context: ctx,
		text:    s,
		write:   func(tr string) { arr.Items[idx] = tr },
	})
}

// linesSite visits an array of display lines joined into one paragraph. The
// writer re-splits the translation over the same number of lines so the
// surrounding array shape is untouched.
func (w *walkState) linesSite(arr *jsondoc.Array, path string, ctx map[string]string) {
	lines := make([]string, len(arr.Items))
	for i, v := range arr.Items {
		s, ok := v.(string)
		if !ok {
			w.mismatch(path, "array of strings", v)
			return
		}
		lines[i] = s
	}
	joined := token.JoinLines(lines)
	if !textutil.HasText(joined) {
		return
	}
	w.visit(site{
		path:    path,
		context: ctx,
		text:    joined,
		lines:   lines,
		write: func(tr string) {
			for i, line := range token.SplitLines(tr, lines) {
				arr.Items[i] = line
			}
		},
	})
}

// commandSite dispatches an event command object against the command rules.
func (w *walkState) commandSite(cmd *jsondoc.Object, path string, ctx map[string]string) {
	codeVal, ok := cmd.Get("code")
	if !ok {
		w.mismatch(path+".code", "number", nil)
		return
	}
	num, ok := codeVal.(json.Number)
	if !ok {
		w.mismatch(path+".code", "number", codeVal)
		return
	}
	code, err := strconv.Atoi(string(num))
	if err != nil {
		w.mismatch(path+".code", "integer", codeVal)
		return
	}

	rule, ok := rules.CommandRuleFor(code)
	if !ok {
		return
	}

	paramsVal, ok := cmd.Get("parameters")
	params, isArr := paramsVal.(*jsondoc.Array)
	if !ok || !isArr {
		w.mismatch(path+".parameters", "array", paramsVal)
		return
	}
	if rule.Param >= len(params.Items) {
		w.mismatch(path+".parameters", fmt.Sprintf("at least %d parameters", rule.Param+1), params)
		return
	}

	cctx := map[string]string{"code": strconv.Itoa(code), "kind": rule.Context}
	for k, v := range ctx {
		cctx[k] = v
	}

	paramPath := identity.JoinPath(path, "parameters", strconv.Itoa(rule.Param))
	switch payload := params.Items[rule.Param].(type) {
	case *jsondoc.Array:
		switch rule.Mode {
		case rules.ModeEach:
			for i := range payload.Items {
				w.slotSite(payload, i, identity.JoinPath(paramPath, strconv.Itoa(i)), cctx)
			}
		default:
			w.linesSite(payload, paramPath, cctx)
		}
	case string:
		// Some plugins flatten the lines array to a single string; treat it
		// as one entry rather than rejecting the command.
		w.slotSite(params, rule.Param, paramPath, cctx)
	default:
		w.mismatch(paramPath, "string or array of strings", params.Items[rule.Param])
	}
}

// walkCommandList visits every command of an event page or common event.
func (w *walkState) walkCommandList(list *jsondoc.Array, basePath string, ctx map[string]string) {
	for i, item := range list.Items {
		if item == nil {
			continue
		}
		cmd, ok := item.(*jsondoc.Object)
		if !ok {
			w.mismatch(identity.JoinPath(basePath, strconv.Itoa(i)), "object", item)
			continue
		}
		w.commandSite(cmd, identity.JoinPath(basePath, strconv.Itoa(i)), ctx)
	}
}

func (w *walkState) walkMap(root any) {
	obj, ok := root.(*jsondoc.Object)
	if !ok {
		w.mismatch("", "object", root)
		return
	}

	w.fieldSite(obj, "displayName", "displayName", map[string]string{"field": "displayName"})

	eventsVal, ok := obj.Get("events")
	if !ok {
		return
	}
	events, ok := eventsVal.(*jsondoc.Array)
	if !ok {
		w.mismatch("events", "array", eventsVal)
		return
	}

	for ei, ev := range events.Items {
		if ev == nil {
			continue
		}
		event, ok := ev.(*jsondoc.Object)
		if !ok {
			w.mismatch(identity.JoinPath("events", strconv.Itoa(ei)), "object", ev)
			continue
		}
		pagesVal, ok := event.Get("pages")
		if !ok {
			continue
		}
		pages, ok := pagesVal.(*jsondoc.Array)
		if !ok {
			w.mismatch(identity.JoinPath("events", strconv.Itoa(ei), "pages"), "array", pagesVal)
			continue
		}
		for pi, pg := range pages.Items {
			page, ok := pg.(*jsondoc.Object)
			if !ok {
				w.mismatch(identity.JoinPath("events", strconv.Itoa(ei), "pages", strconv.Itoa(pi)), "object", pg)
				continue
			}
			listVal, ok := page.Get("list")
			if !ok {
				continue
			}
			list, ok := listVal.(*jsondoc.Array)
			if !ok {
				w.mismatch(identity.JoinPath("events", strconv.Itoa(ei), "pages", strconv.Itoa(pi), "list"), "array", listVal)
				continue
			}
			ctx := map[string]string{"event": strconv.Itoa(ei), "page": strconv.Itoa(pi)}
			w.walkCommandList(list, identity.JoinPath("events", strconv.Itoa(ei), "pages", strconv.Itoa(pi), "list"), ctx)
		}
	}
}

func (w *walkState) walkCommonEvents(root any) {
	arr, ok := root.(*jsondoc.Array)
	if !ok {
		w.mismatch("", "array", root)
		return
	}
	for i, item := range arr.Items {
		if item == nil {
			continue
		}
		event, ok := item.(*jsondoc.Object)
		if !ok {
			w.mismatch(strconv.Itoa(i), "object", item)
			continue
		}
		idx := strconv.Itoa(i)
		w.fieldSite(event, "name", identity.JoinPath(idx, "name"), map[string]string{"field": "name", "record": idx})

		listVal, ok := event.Get("list")
		if !ok {
			continue
		}
		list, ok := listVal.(*jsondoc.Array)
		if !ok {
			w.mismatch(identity.JoinPath(idx, "list"), "array", listVal)
			continue
		}
		w.walkCommandList(list, identity.JoinPath(idx, "list"), map[string]string{"event": idx})
	}
}

func (w *walkState) walkDatabase(root any) {
	arr, ok := root.(*jsondoc.Array)
	if !ok {
		w.mismatch("", "array", root)
		return
	}
	fields := rules.EntryFields[w.cat]
	for i, item := range arr.Items {
		if item == nil {
			continue
		}
		record, ok := item.(*jsondoc.Object)
		if !ok {
			w.mismatch(strconv.Itoa(i), "object", item)
			continue
		}
		idx := strconv.Itoa(i)
		for _, field := range fields {
			w.fieldSite(record, field, identity.JoinPath(idx, field), map[string]string{"field": field, "record": idx})
		}
	}
}

func (w *walkState) walkSystem(root any) {
	obj, ok := root.(*jsondoc.Object)
	if !ok {
		w.mismatch("", "object", root)
		return
	}

	if termsVal, ok := obj.Get("terms"); ok {
		terms, ok := termsVal.(*jsondoc.Object)
		if !ok {
			w.mismatch("terms", "object", termsVal)
		} else {
			for _, name := range rules.SystemTermArrays {
				arrVal, ok := terms.Get(name)
				if !ok {
					continue
				}
				arr, ok := arrVal.(*jsondoc.Array)
				if !ok {
					w.mismatch(identity.JoinPath("terms", name), "array", arrVal)
					continue
				}
				for i := range arr.Items {
					w.slotSite(arr, i, identity.JoinPath("terms", name, strconv.Itoa(i)), map[string]string{"term": name})
				}
			}

			if msgsVal, ok := terms.Get("messages"); ok {
				msgs, ok := msgsVal.(*jsondoc.Object)
				if !ok {
					w.mismatch("terms.messages", "object", msgsVal)
				} else {
					for i := 0; i < msgs.Len(); i++ {
						key := msgs.At(i).Key
						w.fieldSite(msgs, key, identity.JoinPath("terms", "messages", key), map[string]string{"term": "messages", "key": key})
					}
				}
			}
		}
	}

	for _, field := range rules.SystemStringFields {
		w.fieldSite(obj, field, field, map[string]string{"field": field})
	}
}
