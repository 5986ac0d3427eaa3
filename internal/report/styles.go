package report

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/leefowlercu/cmxbatch/internal/tasks"
)

// Color palette using ANSI colors for broad terminal compatibility.
var (
	Success = lipgloss.Color("2") // Green
	Warning = lipgloss.Color("3") // Yellow
	Error   = lipgloss.Color("1") // Red
	Muted   = lipgloss.Color("245")
)

var (
	SuccessText = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	WarningText = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	ErrorText = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	MutedText = lipgloss.NewStyle().
			Foreground(Muted)
)

// Status indicators.
const (
	IconSuccess = "✓"
	IconWarning = "!"
	IconError   = "✗"
)

// StateStyle returns the style and icon used for a run state.
func StateStyle(s tasks.State) (lipgloss.Style, string) {
	switch s {
	case tasks.StateCompleted:
		return SuccessText, IconSuccess
	case tasks.StatePartiallyCompleted:
		return WarningText, IconWarning
	default:
		return ErrorText, IconError
	}
}
