package display

import (
	"github.com/pterm/pterm"
)

// Table renders rows under header. Empty tables print nothing.
func Table(header []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// Warnings prints soft errors below a result
func Warnings(title string, errs []error) {
	for _, err := range errs {
		pterm.Warning.Printfln("%s: %v", title, err)
	}
}
