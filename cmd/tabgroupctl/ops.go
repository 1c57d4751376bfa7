package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/b/tmux-tabgroups/pkg/appconfig"
	"github.com/b/tmux-tabgroups/pkg/config"
	"github.com/b/tmux-tabgroups/pkg/dispatch"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
	"github.com/b/tmux-tabgroups/pkg/window"
)

// windowCmd builds a command whose only argument is a window and whose
// result is an acknowledgement.
func windowCmd(use, short string, op dispatch.Op, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <app/name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWindow(args[0])
			if err != nil {
				return err
			}
			return call(cmd, op, dispatch.WindowRequest{Window: id}, nil, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", done, id)
			})
		},
	}
}

func printGroup(w io.Writer, gi dispatch.GroupInfo) {
	fmt.Fprintf(w, "%s:", gi.ID)
	for _, t := range gi.Tabs {
		marker := ""
		if t == gi.Active {
			marker = "*"
		}
		fmt.Fprintf(w, " %s%s", t, marker)
	}
	fmt.Fprintln(w)
}

var (
	flagClientURL     string
	flagClientHeight  int
	flagClientDefault bool
	flagTitle         string
	flagIcon          string
	flagDropX         int
	flagDropY         int
)

var setTabClientCmd = &cobra.Command{
	Use:   "set-tab-client <application>",
	Short: "Register an application's tab strip (once per application)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := appconfig.TabWindowOptions{URL: flagClientURL, Height: flagClientHeight}
		if flagClientDefault {
			cfg, err := config.LoadOrDefault(config.DefaultConfigPath())
			if err != nil {
				return err
			}
			opts = cfg.TabStrip.Options()
		}
		req := dispatch.SetTabClientRequest{ApplicationID: args[0], Config: opts}
		return call(cmd, dispatch.OpSetTabClient, req, nil, func(w io.Writer) {
			fmt.Fprintf(w, "tab client set for %s\n", args[0])
		})
	},
}

var deregisterCmd = &cobra.Command{
	Use:   "deregister <app/name>",
	Short: "Remove a window from its group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWindow(args[0])
		if err != nil {
			return err
		}
		var removed bool
		return call(cmd, dispatch.OpDeregister, dispatch.WindowRequest{Window: id}, &removed, func(w io.Writer) {
			if removed {
				fmt.Fprintf(w, "removed %s\n", id)
			} else {
				fmt.Fprintf(w, "%s was not in a group\n", id)
			}
		})
	},
}

var getTabsCmd = &cobra.Command{
	Use:   "get-tabs <app/name>",
	Short: "Print the tabs of the window's group in strip order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWindow(args[0])
		if err != nil {
			return err
		}
		var tabs []window.Identifier
		return call(cmd, dispatch.OpGetTabs, dispatch.WindowRequest{Window: id}, &tabs, func(w io.Writer) {
			for _, t := range tabs {
				fmt.Fprintln(w, t)
			}
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <app/name>...",
	Short: "Group windows; the first window's bounds seed the group",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseWindows(args)
		if err != nil {
			return err
		}
		var gi dispatch.GroupInfo
		return call(cmd, dispatch.OpCreateTabGroup, dispatch.CreateTabGroupRequest{Windows: ids}, &gi, func(w io.Writer) {
			printGroup(w, gi)
		})
	},
}

var addTabCmd = &cobra.Command{
	Use:   "add-tab <target app/name> <app/name>",
	Short: "Add a window to the group containing target",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseWindows(args)
		if err != nil {
			return err
		}
		req := dispatch.AddTabRequest{Target: ids[0], Window: ids[1]}
		if flagTitle != "" || flagIcon != "" {
			req.Properties = &tabgroup.Properties{Title: flagTitle, Icon: flagIcon}
		}
		var gi dispatch.GroupInfo
		return call(cmd, dispatch.OpAddTab, req, &gi, func(w io.Writer) { printGroup(w, gi) })
	},
}

var reorderCmd = &cobra.Command{
	Use:   "reorder <group id | app/name> <app/name>...",
	Short: "Reorder a group's tabs; the list must contain every tab exactly once",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ordering, err := parseWindows(args[1:])
		if err != nil {
			return err
		}
		target, err := parseWindow(args[0])
		if err != nil {
			// Bare group id.
			target = window.Identifier{Name: args[0]}
		}
		req := dispatch.ReorderTabsRequest{Ordering: ordering, ID: target}
		return call(cmd, dispatch.OpReorderTabs, req, nil, func(w io.Writer) {
			fmt.Fprintln(w, "reordered")
		})
	},
}

var setPropsCmd = &cobra.Command{
	Use:   "set-props <app/name>",
	Short: "Update a tab's title, icon or custom data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWindow(args[0])
		if err != nil {
			return err
		}
		props := tabgroup.Properties{Title: flagTitle, Icon: flagIcon}
		if data, _ := cmd.Flags().GetString("data"); data != "" {
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("--data is not valid JSON")
			}
			props.CustomData = json.RawMessage(data)
		}
		var updated tabgroup.Properties
		req := dispatch.UpdateTabPropertiesRequest{Window: id, Properties: props}
		return call(cmd, dispatch.OpUpdateTabProperties, req, &updated, func(w io.Writer) {
			fmt.Fprintf(w, "%s: title=%q icon=%q\n", id, updated.Title, updated.Icon)
		})
	},
}

var getPropsCmd = &cobra.Command{
	Use:   "props <app/name>",
	Short: "Print a tab's properties",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWindow(args[0])
		if err != nil {
			return err
		}
		var props tabgroup.Properties
		return call(cmd, dispatch.OpGetTabProperties, dispatch.WindowRequest{Window: id}, &props, func(w io.Writer) {
			fmt.Fprintf(w, "title: %s\nicon: %s\n", props.Title, props.Icon)
			if len(props.CustomData) > 0 {
				fmt.Fprintf(w, "data: %s\n", props.CustomData)
			}
		})
	},
}

var endDragCmd = &cobra.Command{
	Use:   "end-drag <app/name>",
	Short: "Finish a drag, dropping the window at --x/--y",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWindow(args[0])
		if err != nil {
			return err
		}
		req := dispatch.EndDragRequest{Window: id, Drop: window.Point{X: flagDropX, Y: flagDropY}}
		var res dispatch.EndDragResult
		return call(cmd, dispatch.OpEndDrag, req, &res, func(w io.Writer) {
			fmt.Fprintf(w, "%s %s\n", id, res.Outcome)
		})
	},
}

func init() {
	setTabClientCmd.Flags().StringVar(&flagClientURL, "url", "", "tab strip page URL")
	setTabClientCmd.Flags().IntVar(&flagClientHeight, "height", config.DefaultStripHeight, "tab strip height")
	setTabClientCmd.Flags().BoolVar(&flagClientDefault, "default", false, "use tab_strip from the config file")
	setTabClientCmd.MarkFlagsOneRequired("url", "default")
	setTabClientCmd.MarkFlagsMutuallyExclusive("url", "default")

	addTabCmd.Flags().StringVar(&flagTitle, "title", "", "tab title")
	addTabCmd.Flags().StringVar(&flagIcon, "icon", "", "tab icon")
	setPropsCmd.Flags().StringVar(&flagTitle, "title", "", "tab title")
	setPropsCmd.Flags().StringVar(&flagIcon, "icon", "", "tab icon")
	setPropsCmd.Flags().String("data", "", "custom data (JSON)")

	endDragCmd.Flags().IntVar(&flagDropX, "x", 0, "drop screen x")
	endDragCmd.Flags().IntVar(&flagDropY, "y", 0, "drop screen y")

	rootCmd.AddCommand(
		setTabClientCmd,
		deregisterCmd,
		getTabsCmd,
		createCmd,
		addTabCmd,
		windowCmd("remove-tab", "Take a window out of its group", dispatch.OpRemoveTab, "removed"),
		windowCmd("activate", "Make a window the active tab", dispatch.OpSetActiveTab, "activated"),
		windowCmd("close-tab", "Close a tab and its window", dispatch.OpCloseTab, "closed"),
		windowCmd("minimize", "Minimize the window's group", dispatch.OpMinimizeTabGroup, "minimized group of"),
		windowCmd("maximize", "Maximize the window's group", dispatch.OpMaximizeTabGroup, "maximized group of"),
		windowCmd("restore", "Restore the window's group", dispatch.OpRestoreTabGroup, "restored group of"),
		windowCmd("close-group", "Close the window's group and every window in it", dispatch.OpCloseTabGroup, "closed group of"),
		reorderCmd,
		setPropsCmd,
		getPropsCmd,
		windowCmd("start-drag", "Show the drag overlay for a window", dispatch.OpStartDrag, "dragging"),
		endDragCmd,
	)
}
