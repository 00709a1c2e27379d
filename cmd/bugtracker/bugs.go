package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugtracker/internal/tracker"
	"github.com/steveyegge/bugtracker/internal/types"
)

var bugsCmd = &cobra.Command{
	Use:   "bugs",
	Short: "List, inspect and report bugs",
}

var bugsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bugs, newest first",
	Long: `List bugs, newest first.

Examples:
  # Everything still open
  bugtracker bugs list --status open

  # High severity bugs on one page
  bugtracker bugs list --severity high --url https://shop.example.com/checkout`,
	Run: func(cmd *cobra.Command, args []string) {
		filter, err := bugFilterFromFlags(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		withApp(cmd, func(ctx context.Context, a *app) error {
			return listBugs(ctx, os.Stdout, a.tracker, filter)
		})
	},
}

var bugsShowCmd = &cobra.Command{
	Use:   "show <bug-id>",
	Short: "Show a bug and its history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app) error {
			return showBug(ctx, os.Stdout, a.tracker, args[0])
		})
	},
}

var bugsReportCmd = &cobra.Command{
	Use:   "report",
	Short: "File a bug report",
	Long: `File a bug report through the same path as the web client: AI
enrichment, duplicate detection and escalation all apply.

Examples:
  bugtracker bugs report --title "Double charge" \
    --description "Clicking Pay charges customers twice" \
    --url https://shop.example.com/checkout --email tester@example.com`,
	Run: func(cmd *cobra.Command, args []string) {
		req := tracker.ReportRequest{}
		req.Title, _ = cmd.Flags().GetString("title")
		req.Description, _ = cmd.Flags().GetString("description")
		req.TestURL, _ = cmd.Flags().GetString("url")
		req.ReporterEmail, _ = cmd.Flags().GetString("email")

		withApp(cmd, func(ctx context.Context, a *app) error {
			return reportBug(ctx, os.Stdout, a.tracker, req)
		})
	},
}

var bugsSeverityCmd = &cobra.Command{
	Use:   "severity <bug-id> <low|medium|high>",
	Short: "Override a bug's severity",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		sev, err := types.ParseSeverity(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		withApp(cmd, func(ctx context.Context, a *app) error {
			bug, err := a.tracker.SetSeverity(ctx, args[0], sev, "cli")
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s %s is now %s\n", green("✓"), bug.ID, severityLabel(bug.Severity))
			return nil
		})
	},
}

func init() {
	bugsListCmd.Flags().String("status", "", "Filter by status (open, closed)")
	bugsListCmd.Flags().String("severity", "", "Filter by severity (low, medium, high)")
	bugsListCmd.Flags().String("url", "", "Filter by exact test URL")
	bugsListCmd.Flags().String("category", "", "Filter by category")
	bugsListCmd.Flags().Int("limit", 0, "Maximum number of bugs (0 = all)")

	bugsReportCmd.Flags().String("title", "", "Bug title (required)")
	bugsReportCmd.Flags().String("description", "", "What went wrong (required)")
	bugsReportCmd.Flags().String("url", "", "Page the bug was found on")
	bugsReportCmd.Flags().String("email", "", "Reporter e-mail")

	bugsCmd.AddCommand(bugsListCmd, bugsShowCmd, bugsReportCmd, bugsSeverityCmd)
	rootCmd.AddCommand(bugsCmd)
}

// withApp builds the services, runs fn and exits non-zero on error
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, store, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}

func bugFilterFromFlags(cmd *cobra.Command) (types.BugFilter, error) {
	var filter types.BugFilter
	if s, _ := cmd.Flags().GetString("status"); s != "" {
		status, err := types.ParseStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if s, _ := cmd.Flags().GetString("severity"); s != "" {
		sev, err := types.ParseSeverity(s)
		if err != nil {
			return filter, err
		}
		filter.Severity = &sev
	}
	if s, _ := cmd.Flags().GetString("url"); s != "" {
		filter.TestURL = &s
	}
	if s, _ := cmd.Flags().GetString("category"); s != "" {
		filter.Category = &s
	}
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if filter.Limit < 0 {
		return filter, fmt.Errorf("limit cannot be negative")
	}
	return filter, nil
}

func listBugs(ctx context.Context, w io.Writer, svc *tracker.Service, filter types.BugFilter) error {
	bugs, err := svc.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(bugs) == 0 {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(w, "%s No bugs found\n", green("✓"))
		return nil
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	for _, bug := range bugs {
		fmt.Fprintf(w, "%s [%s] %s %s\n", cyan(bug.ID), severityLabel(bug.Severity), statusLabel(bug.Status), bug.Title)
		if bug.TestURL != "" {
			fmt.Fprintf(w, "  URL: %s\n", bug.TestURL)
		}
		fmt.Fprintf(w, "  Reports: %d  Category: %s\n", bug.Reports, bug.Category)
	}
	fmt.Fprintf(w, "\n%d bug(s)\n", len(bugs))
	return nil
}

func showBug(ctx context.Context, w io.Writer, svc *tracker.Service, id string) error {
	bug, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}
	events, err := svc.Events(ctx, id, 0)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s\n", bold(bug.Title))
	fmt.Fprintf(w, "  ID:        %s\n", bug.ID)
	fmt.Fprintf(w, "  Status:    %s\n", statusLabel(bug.Status))
	fmt.Fprintf(w, "  Severity:  %s\n", severityLabel(bug.Severity))
	fmt.Fprintf(w, "  Category:  %s\n", bug.Category)
	if len(bug.Tags) > 0 {
		fmt.Fprintf(w, "  Tags:      %s\n", strings.Join(bug.Tags, ", "))
	}
	if bug.TestURL != "" {
		fmt.Fprintf(w, "  URL:       %s\n", bug.TestURL)
	}
	fmt.Fprintf(w, "  Reports:   %d\n", bug.Reports)
	if len(bug.Reporters) > 0 {
		fmt.Fprintf(w, "  Reporters: %s\n", strings.Join(bug.Reporters, ", "))
	}
	fmt.Fprintf(w, "  Created:   %s\n", bug.CreatedAt.Local().Format(time.RFC822))
	if bug.ClosedAt != nil {
		fmt.Fprintf(w, "  Resolved:  %s\n", bug.ClosedAt.Local().Format(time.RFC822))
	}
	fmt.Fprintf(w, "\nSummary:\n  %s\n", bug.Summary)

	if len(events) > 0 {
		fmt.Fprintf(w, "\nHistory:\n")
		for _, e := range events {
			fmt.Fprintf(w, "  %s  %-16s %s%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Type, e.Actor, eventDetail(e))
		}
	}
	return nil
}

func eventDetail(e *types.Event) string {
	var b strings.Builder
	if e.OldValue != nil || e.NewValue != nil {
		old, updated := "", ""
		if e.OldValue != nil {
			old = *e.OldValue
		}
		if e.NewValue != nil {
			updated = *e.NewValue
		}
		if old != "" {
			fmt.Fprintf(&b, "  %s → %s", old, updated)
		} else {
			fmt.Fprintf(&b, "  %s", updated)
		}
	}
	if e.Comment != nil {
		fmt.Fprintf(&b, " (%s)", *e.Comment)
	}
	return b.String()
}

func reportBug(ctx context.Context, w io.Writer, svc *tracker.Service, req tracker.ReportRequest) error {
	result, err := svc.Report(ctx, req)
	var resolved *tracker.ResolvedError
	if errors.As(err, &resolved) {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(w, "%s %s\n", yellow("⚠"), resolved.Error())
		fmt.Fprintf(w, "  %s: %s (resolved %s)\n", resolved.Info.ID, resolved.Info.Title,
			resolved.Info.ResolvedAt.Local().Format(time.RFC822))
		return nil
	}
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	switch result.Outcome {
	case tracker.OutcomeCreated:
		fmt.Fprintf(w, "%s Created %s [%s] %s\n", green("✓"), cyan(result.Bug.ID), severityLabel(result.Bug.Severity), result.Bug.Title)
	default:
		fmt.Fprintf(w, "%s %s\n", green("✓"), result.Message)
		fmt.Fprintf(w, "  %s [%s] reports: %d\n", cyan(result.Bug.ID), severityLabel(result.Bug.Severity), result.Bug.Reports)
	}
	return nil
}

func severityLabel(s types.Severity) string {
	switch s {
	case types.SeverityHigh:
		return color.New(color.FgRed, color.Bold).Sprint(s)
	case types.SeverityMedium:
		return color.New(color.FgYellow).Sprint(s)
	default:
		return color.New(color.FgGreen).Sprint(s)
	}
}

func statusLabel(s types.Status) string {
	if s == types.StatusClosed {
		return color.New(color.FgHiBlack).Sprint(s)
	}
	return color.New(color.FgCyan).Sprint(s)
}
