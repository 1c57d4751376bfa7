package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/b/tmux-tabgroups/pkg/tabgroup"
	"github.com/b/tmux-tabgroups/pkg/window"
)

var flagWatchPlain bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream tab group events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		events, err := c.Subscribe(ctx)
		if err != nil {
			return err
		}

		if flagWatchPlain || flagJSON || !isTerminal() {
			out := cmd.OutOrStdout()
			for ev := range events {
				if flagJSON {
					data, _ := json.Marshal(ev)
					fmt.Fprintln(out, string(data))
					continue
				}
				fmt.Fprintln(out, formatEvent(time.Now(), ev))
			}
			return nil
		}

		setColorProfile()
		_, err = tea.NewProgram(newWatchModel(events), tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	watchCmd.Flags().BoolVar(&flagWatchPlain, "plain", false, "print events line by line instead of the full-screen view")
	rootCmd.AddCommand(watchCmd)
}

var (
	eventTypeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3498db")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#333333")).Padding(0, 1)
)

func formatEvent(at time.Time, ev tabgroup.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s group=%s", at.Format("15:04:05"), eventTypeStyle.Render(string(ev.Type)), ev.GroupID)
	if !ev.Tab.IsZero() {
		fmt.Fprintf(&b, " tab=%s", ev.Tab)
	}
	if len(ev.Tabs) > 0 {
		fmt.Fprintf(&b, " tabs=[%s]", strings.Join(idStrings(ev.Tabs), " "))
	}
	if ev.Properties != nil && ev.Properties.Title != "" {
		fmt.Fprintf(&b, " title=%q", ev.Properties.Title)
	}
	return b.String()
}

type eventMsg tabgroup.Event

type disconnectedMsg struct{}

func waitForEvent(events <-chan tabgroup.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return disconnectedMsg{}
		}
		return eventMsg(ev)
	}
}

type watchModel struct {
	events       <-chan tabgroup.Event
	lines        []string
	viewport     viewport.Model
	ready        bool
	disconnected bool
	now          func() time.Time
}

func newWatchModel(events <-chan tabgroup.Event) watchModel {
	return watchModel{events: events, now: time.Now}
}

func (m watchModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 1 // title line
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
		return m, nil

	case eventMsg:
		m.lines = append(m.lines, formatEvent(m.now(), tabgroup.Event(msg)))
		if m.ready {
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.viewport.GotoBottom()
		}
		return m, waitForEvent(m.events)

	case disconnectedMsg:
		m.disconnected = true
		return m, nil
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	title := fmt.Sprintf("tabgroupd events (%d)", len(m.lines))
	if m.disconnected {
		title += " - disconnected"
	}
	if !m.ready {
		return titleStyle.Render(title) + "\n" + dimStyle.Render("waiting for events...")
	}
	return titleStyle.Render(title) + "\n" + m.viewport.View()
}

func idStrings(ids []window.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
