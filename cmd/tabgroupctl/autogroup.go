package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/b/tmux-tabgroups/pkg/config"
	"github.com/b/tmux-tabgroups/pkg/dispatch"
	"github.com/b/tmux-tabgroups/pkg/grouping"
	"github.com/b/tmux-tabgroups/pkg/tmux"
)

var (
	flagAutoDryRun bool
	flagAutoConfig string
	flagTmuxSocket string
)

var autogroupCmd = &cobra.Command{
	Use:   "autogroup",
	Short: "Group tmux windows using the auto_group rules from the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault(flagAutoConfig)
		if err != nil {
			return err
		}
		if len(cfg.AutoGroup) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no auto_group rules configured")
			return nil
		}

		windows, err := tmux.ListWindows(cmd.Context(), tmux.ExecRunner{Socket: flagTmuxSocket})
		if err != nil {
			return err
		}
		proposals := grouping.Propose(windows, cfg.AutoGroup)

		out := cmd.OutOrStdout()
		if flagAutoDryRun {
			printProposals(out, proposals)
			return nil
		}
		for _, p := range proposals {
			var gi dispatch.GroupInfo
			req := dispatch.CreateTabGroupRequest{Windows: p.Identifiers()}
			if err := call(cmd, dispatch.OpCreateTabGroup, req, &gi, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s): ", p.Name, p.Session)
				printGroup(w, gi)
			}); err != nil {
				return fmt.Errorf("group %s in %s: %w", p.Name, p.Session, err)
			}
		}
		return nil
	},
}

func printProposals(w io.Writer, proposals []grouping.Proposal) {
	if len(proposals) == 0 {
		fmt.Fprintln(w, "nothing to group")
		return
	}
	for _, p := range proposals {
		fmt.Fprintf(w, "%s (%s):", p.Name, p.Session)
		for _, id := range p.Identifiers() {
			fmt.Fprintf(w, " %s", id)
		}
		fmt.Fprintln(w)
	}
}

func init() {
	autogroupCmd.Flags().BoolVar(&flagAutoDryRun, "dry-run", false, "print the proposed groups without creating them")
	autogroupCmd.Flags().StringVar(&flagAutoConfig, "config", config.DefaultConfigPath(), "config file")
	autogroupCmd.Flags().StringVar(&flagTmuxSocket, "tmux-socket", "", "tmux server socket (default: tmux's own)")
	rootCmd.AddCommand(autogroupCmd)
}
