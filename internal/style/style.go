package style

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Bold and Dim are the two text styles every CLI command reaches for:
// headers and emphasis in Bold, secondary/deemphasized text in Dim.
var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	warnStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	errStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
)

// PrintWarning writes a formatted warning line to stderr, prefixed with a
// styled marker. Non-fatal — callers use this for "continuing anyway"
// conditions, never in place of returning an error.
func PrintWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", warnStyle.Render("!"), fmt.Sprintf(format, args...))
}

// PrintError writes a formatted error line to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errStyle.Render("✗"), fmt.Sprintf(format, args...))
}
