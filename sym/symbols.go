// Package sym defines canonical symbols for semstore operations and system markers.
// They appear as the "symbol" field in structured logs and as prefixes in CLI output,
// so logs can be filtered by subsystem without parsing messages.
package sym

// Primary operations, each with a CLI command.
const (
	AM  = "≡" // am: configuration
	AS  = "+" // put: write a subject's facts
	GET = "⊳" // get: read a subject's facts
	AX  = "⋈" // ask: compile and run a condition tree
)

// Building blocks of a fact: "subject HAS property OF value".
const (
	IS  = "=" // identity/redirect between subjects
	OF  = "∈" // membership (category, concept)
	SUB = "⊂" // subobject owned by a subject
)

// System infrastructure symbols.
const (
	DB      = "⊔" // database/storage layer
	Cache   = "◌" // in-process caches (ids, stubs, table hashes)
	Temp    = "⌗" // materialized temp tables
	Rebuild = "꩜" // external rebuild loop
)

type entry struct {
	glyph       string
	command     string
	description string
}

var registry = []entry{
	{AM, "am", "Configuration"},
	{AS, "put", "Write a subject's facts"},
	{GET, "get", "Read a subject's facts"},
	{AX, "ask", "Query subjects by condition"},
	{IS, "redirect", "Redirect one subject to another"},
	{OF, "concept", "Concept cache maintenance"},
	{SUB, "", "Subobject"},
	{DB, "db", "Database setup and statistics"},
	{Cache, "", "In-process cache"},
	{Temp, "", "Materialized temp table"},
	{Rebuild, "rebuild", "Re-run updates for stored subjects"},
}

var commandToGlyph map[string]string

func init() {
	commandToGlyph = make(map[string]string, len(registry))
	for _, e := range registry {
		if e.command != "" {
			commandToGlyph[e.command] = e.glyph
		}
	}
}

// ForCommand returns the glyph for a CLI command name, or "" when the command has none.
func ForCommand(command string) string {
	return commandToGlyph[command]
}

// Describe returns the description registered for a glyph.
func Describe(glyph string) string {
	for _, e := range registry {
		if e.glyph == glyph {
			return e.description
		}
	}
	return ""
}
