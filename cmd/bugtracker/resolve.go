package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugtracker/internal/tracker"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <bug-id>",
	Short: "Mark a bug as resolved",
	Long: `Mark a bug as resolved. Resolving a closed bug is a no-op.

With --send-mail a resolution notice is published for the bug's reporters.
A failed notice is reported but does not undo the resolve.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sendMail, _ := cmd.Flags().GetBool("send-mail")
		withApp(cmd, func(ctx context.Context, a *app) error {
			return resolveBug(ctx, os.Stdout, a.tracker, args[0], sendMail)
		})
	},
}

func init() {
	resolveCmd.Flags().Bool("send-mail", false, "Notify the reporters")
	rootCmd.AddCommand(resolveCmd)
}

func resolveBug(ctx context.Context, w io.Writer, svc *tracker.Service, id string, sendMail bool) error {
	result, err := svc.Resolve(ctx, id, tracker.ResolveOptions{SendMail: sendMail, Actor: "cli"})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	if result.AlreadyClosed {
		fmt.Fprintf(w, "%s %s was already resolved\n", yellow("⚠"), result.Bug.ID)
		return nil
	}
	fmt.Fprintf(w, "%s %s: %s\n", green("✓"), tracker.ResolvedMessage, result.Bug.Title)
	switch {
	case !sendMail:
	case result.Notified:
		fmt.Fprintf(w, "  Notified %d reporter(s)\n", len(result.Bug.Reporters))
	case len(result.Bug.Reporters) == 0:
		fmt.Fprintf(w, "  %s no reporters to notify\n", yellow("⚠"))
	default:
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(w, "  %s resolution notice failed (see logs)\n", red("✗"))
	}
	return nil
}
