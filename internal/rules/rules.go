// Package rules is the declarative table of translatable-string locations.
// It maps (file category, node shape) to extraction behavior; the tree walker
// consults it generically, so adding a file category or command code is a
// table edit, not walker surgery.
package rules

import "regexp"

// Category identifies which rule set applies to a source file.
type Category string

const (
	CategoryMap          Category = "map"
	CategoryActors       Category = "actors"
	CategoryClasses      Category = "classes"
	CategoryItems        Category = "items"
	CategorySkills       Category = "skills"
	CategoryStates       Category = "states"
	CategorySystem       Category = "system"
	CategoryWeapons      Category = "weapons"
	CategoryArmors       Category = "armors"
	CategoryEnemies      Category = "enemies"
	CategoryTroops       Category = "troops"
	CategoryCommonEvents Category = "common_events"
)

var mapFilePattern = regexp.MustCompile(`^Map\d{3}\.json$`)

var fileCategories = map[string]Category{
	"Actors.json":       CategoryActors,
	"Classes.json":      CategoryClasses,
	"Items.json":        CategoryItems,
	"Skills.json":       CategorySkills,
	"States.json":       CategoryStates,
	"System.json":       CategorySystem,
	"Weapons.json":      CategoryWeapons,
	"Armors.json":       CategoryArmors,
	"Enemies.json":      CategoryEnemies,
	"Troops.json":       CategoryTroops,
	"CommonEvents.json": CategoryCommonEvents,
}

// DetectCategory maps a data file's base name to its category.
func DetectCategory(baseName string) (Category, bool) {
	if mapFilePattern.MatchString(baseName) {
		return CategoryMap, true
	}
	cat, ok := fileCategories[baseName]
	return cat, ok
}

// EntryFields lists the translatable string fields of one database record,
// per category. Records live in a top-level array indexed from 1 with a nil
// slot 0; fields not listed here (parameters, traits, notes) are never touched.
var EntryFields = map[Category][]string{
	CategoryActors:       {"name", "nickname", "profile"},
	CategoryClasses:      {"name"},
	CategoryItems:        {"name", "description"},
	CategorySkills:       {"name", "description", "message1", "message2"},
	CategoryStates:       {"name", "message1", "message2", "message3", "message4"},
	CategoryWeapons:      {"name", "description"},
	CategoryArmors:       {"name", "description"},
	CategoryEnemies:      {"name"},
	CategoryTroops:       {"name"},
	CategoryCommonEvents: {"name"},
}

// ParamMode says how an event command's parameter holds text.
type ParamMode int

const (
	// ModeSingle: the parameter is one string.
	ModeSingle ParamMode = iota
	// ModeLines: the parameter is an ordered array of display lines joined
	// into one translatable paragraph.
	ModeLines
	// ModeEach: the parameter is an array whose elements are independent
	// strings (e.g. one per choice), each its own entry.
	ModeEach
)

// CommandRule describes the translatable payload of one event command code.
type CommandRule struct {
	Code    int
	Param   int
	Mode    ParamMode
	Context string
}

// commandRules covers the event command codes that carry player-visible text.
// Every other code is numeric parameters and is skipped entirely.
var commandRules = map[int]CommandRule{
	401: {Code: 401, Param: 0, Mode: ModeLines, Context: "show_text"},
	102: {Code: 102, Param: 0, Mode: ModeEach, Context: "choices"},
	405: {Code: 405, Param: 0, Mode: ModeLines, Context: "scroll_text"},
}

// CommandRuleFor looks up the rule for an event command code.
func CommandRuleFor(code int) (CommandRule, bool) {
	r, ok := commandRules[code]
	return r, ok
}

// HasEventCommands reports whether a category's records carry event command
// lists the walker must descend into.
func HasEventCommands(c Category) bool {
	return c == CategoryMap || c == CategoryCommonEvents
}

// System.json locations. Term arrays hold positional UI strings; the messages
// object maps message keys to format strings.
var (
	SystemStringFields = []string{"gameTitle", "currencyUnit"}
	SystemTermArrays   = []string{"basic", "commands", "params"}
)
