package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugtracker/internal/api"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check storage, AI and notification wiring",
	Long: `Run health checks against the configured services.

This command checks:
- Database connectivity
- AI provider, model and circuit breaker
- Enrichment labels and duplicate detection settings
- Resolution notice transport

Exit codes:
  0 - All checks passed (warnings allowed)
  1 - One or more checks failed`,
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app) error {
			if failures := runDoctor(ctx, os.Stdout, a, store); failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// runDoctor prints each check and returns the number of failures
func runDoctor(ctx context.Context, w io.Writer, a *app, db api.Pinger) int {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	failures := 0

	fmt.Fprintf(w, "%s Storage\n", cyan("→"))
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := db.Ping(pingCtx)
	cancel()
	if err != nil {
		failures++
		fmt.Fprintf(w, "  %s %v\n", red("✗"), err)
	} else {
		fmt.Fprintf(w, "  %s reachable\n", green("✓"))
	}

	fmt.Fprintf(w, "%s AI provider\n", cyan("→"))
	if a.aiClient == nil {
		fmt.Fprintf(w, "  %s disabled; reports get default enrichment\n", yellow("⚠"))
	} else {
		fmt.Fprintf(w, "  Model: %s\n", a.aiClient.Model())
		if err := a.aiClient.HealthCheck(ctx); err != nil {
			failures++
			fmt.Fprintf(w, "  %s %v\n", red("✗"), err)
		} else {
			fmt.Fprintf(w, "  %s circuit %s\n", green("✓"), a.aiClient.CircuitState())
		}
	}

	fmt.Fprintf(w, "%s Enrichment\n", cyan("→"))
	fmt.Fprintf(w, "  Labels: %s\n", strings.Join(a.enricher.Labels(), ", "))

	fmt.Fprintf(w, "%s Duplicate detection\n", cyan("→"))
	fmt.Fprintf(w, "  %s\n", a.detector.Config())

	fmt.Fprintf(w, "%s Resolution notices\n", cyan("→"))
	if a.nats == nil {
		fmt.Fprintf(w, "  %s no NATS URL; notices are logged only\n", yellow("⚠"))
	} else {
		fmt.Fprintf(w, "  %s NATS subject %s\n", green("✓"), a.nats.Subject())
	}

	fmt.Fprintln(w)
	if failures > 0 {
		fmt.Fprintf(w, "%s %d check(s) failed\n", red("✗"), failures)
	} else {
		fmt.Fprintf(w, "%s All checks passed\n", green("✓"))
	}
	return failures
}
