package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/b/tmux-tabgroups/pkg/dispatch"
	"github.com/b/tmux-tabgroups/pkg/grouping"
)

var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every tab group",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var groups []dispatch.GroupInfo
		return call(cmd, dispatch.OpListGroups, struct{}{}, &groups, func(w io.Writer) {
			setColorProfile()
			fmt.Fprint(w, renderGroups(groups, terminalWidth()))
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// terminalWidth falls back to 80 columns when stdout is not a terminal.
func terminalWidth() int {
	if !isTerminal() {
		return 80
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w < 20 {
		return 80
	}
	return w
}

func setColorProfile() {
	if !isTerminal() || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// renderGroups draws one header per group followed by its tabs in strip
// order. The active tab is marked with an asterisk.
func renderGroups(groups []dispatch.GroupInfo, width int) string {
	if len(groups) == 0 {
		return dimStyle.Render("No tab groups") + "\n"
	}

	var b strings.Builder
	for i, gi := range groups {
		color := grouping.GroupColor(i)
		header := lipgloss.NewStyle().
			Background(lipgloss.Color(color)).
			Foreground(lipgloss.Color(grouping.ReadableForeground(color))).
			Bold(true)

		meta := fmt.Sprintf("%d tabs", len(gi.Tabs))
		if len(gi.Tabs) == 1 {
			meta = "1 tab"
		}
		if gi.State != "" {
			meta += ", " + string(gi.State)
		}
		b.WriteString(header.Render(runewidth.Truncate(gi.ID, width-len(meta)-4, "…")))
		b.WriteString(" " + dimStyle.Render("("+meta+")") + "\n")

		for _, t := range gi.Tabs {
			marker := "  "
			style := lipgloss.NewStyle()
			if t == gi.Active {
				marker = "* "
				style = style.Foreground(lipgloss.Color(grouping.LightenColor(color, 0.3)))
			}
			b.WriteString("  " + marker + style.Render(runewidth.Truncate(t.String(), width-4, "…")) + "\n")
		}
	}
	return b.String()
}
