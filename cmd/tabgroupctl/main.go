// tabgroupctl drives a running tabgroupd from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/b/tmux-tabgroups/pkg/daemon"
	"github.com/b/tmux-tabgroups/pkg/dispatch"
	"github.com/b/tmux-tabgroups/pkg/paths"
	"github.com/b/tmux-tabgroups/pkg/window"
)

var (
	// Global flags.
	flagSocket  string
	flagJSON    bool
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "tabgroupctl",
	Short: "Control tab groups",
	Long: `tabgroupctl sends requests to tabgroupd.

Windows are written as application/name, for example work/@3 for a tmux
window or editor/main for an application window.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", envOrDefault("TABGROUPS_SOCKET", ""), "daemon socket (default: runtime dir)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 5*time.Second, "request timeout")
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func socketPath() string {
	if flagSocket != "" {
		return flagSocket
	}
	return paths.SocketPath()
}

// exitCode is 2 for a refused request and 1 for anything else.
func exitCode(err error) int {
	var rej *dispatch.Rejection
	if errors.As(err, &rej) {
		return 2
	}
	return 1
}

func dial(ctx context.Context) (*daemon.Client, error) {
	c, err := daemon.Dial(ctx, socketPath())
	if err != nil {
		return nil, fmt.Errorf("%w (is tabgroupd running?)", err)
	}
	return c, nil
}

// call sends one request and prints its result.
func call(cmd *cobra.Command, op dispatch.Op, payload any, result any, human func(io.Writer)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	c, err := dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Call(ctx, op, payload, result); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if flagJSON && result != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if human != nil {
		human(out)
	}
	return nil
}

// parseWindow reads "application/name". The name may itself contain slashes.
func parseWindow(s string) (window.Identifier, error) {
	app, name, ok := strings.Cut(s, "/")
	if !ok || app == "" || name == "" {
		return window.Identifier{}, fmt.Errorf("invalid window %q: want application/name", s)
	}
	return window.Identifier{ApplicationID: app, Name: name}, nil
}

func parseWindows(args []string) ([]window.Identifier, error) {
	ids := make([]window.Identifier, 0, len(args))
	for _, a := range args {
		id, err := parseWindow(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
