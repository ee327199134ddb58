package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"HNPulse/internal/domain"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func formatResult(r domain.RunResult) string {
	if !r.Succeeded() {
		return failStyle.Render("fetch failed: "+r.Reason) + " " + dimStyle.Render("run "+r.RunID)
	}
	summary := fmt.Sprintf("%d processed, %d new, %d updated, %d failed fetches, %d keyword mentions",
		r.Processed, r.New, r.Updated, r.FailedFetches, r.MentionsCreated)
	return okStyle.Render(summary) + " " + dimStyle.Render(fmt.Sprintf("run %s in %s", r.RunID, r.Duration.Round(time.Millisecond)))
}
