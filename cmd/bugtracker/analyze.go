package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugtracker/internal/pageanalysis"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Draft a bug report from a live page",
	Long: `Load a page (headless Chrome unless browser.enabled is false), ask the
AI provider for a likely defect, and print the drafted title and description.

Examples:
  bugtracker analyze https://shop.example.com/checkout
  bugtracker analyze https://shop.example.com --screenshot page.png`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		shot, _ := cmd.Flags().GetString("screenshot")
		withApp(cmd, func(ctx context.Context, a *app) error {
			return analyzePage(ctx, os.Stdout, a.analyzer, args[0], shot)
		})
	},
}

func init() {
	analyzeCmd.Flags().String("screenshot", "", "Write the captured PNG to this file")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzePage(ctx context.Context, w io.Writer, analyzer *pageanalysis.Analyzer, url, screenshotPath string) error {
	result, err := analyzer.Analyze(ctx, url)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s\n\n%s\n", bold(result.Title), result.Description)

	if screenshotPath == "" {
		return nil
	}
	png, err := result.Screenshot()
	if err != nil {
		return err
	}
	if len(png) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(w, "\n%s no screenshot captured\n", yellow("⚠"))
		return nil
	}
	if err := os.WriteFile(screenshotPath, png, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	fmt.Fprintf(w, "\nScreenshot written to %s\n", screenshotPath)
	return nil
}
