package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugtracker/internal/developers"
	"github.com/steveyegge/bugtracker/internal/types"
)

var developerCmd = &cobra.Command{
	Use:     "developer",
	Aliases: []string{"dev"},
	Short:   "Manage developers and the sites they own",
}

var developerAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Register a developer",
	Long: `Register a developer and the base URLs they own. Bugs reported on any
page under one of those origins show up in "developer show".

Examples:
  bugtracker developer add dev@example.com --name "Dana" \
    --url https://shop.example.com --url http://localhost:3000`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		urls, _ := cmd.Flags().GetStringSlice("url")
		withApp(cmd, func(ctx context.Context, a *app) error {
			return addDeveloper(ctx, os.Stdout, a.developers, types.Developer{
				Name:         name,
				Email:        args[0],
				AssignedURLs: urls,
			})
		})
	},
}

var developerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered developers",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app) error {
			return listDevelopers(ctx, os.Stdout, a.developers)
		})
	},
}

var developerShowCmd = &cobra.Command{
	Use:   "show <email|id>",
	Short: "Show a developer and the bugs on their sites",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(cmd, func(ctx context.Context, a *app) error {
			return showDeveloper(ctx, os.Stdout, a.developers, args[0])
		})
	},
}

func init() {
	developerAddCmd.Flags().String("name", "", "Display name")
	developerAddCmd.Flags().StringSlice("url", nil, "Assigned base URL (repeatable)")
	developerCmd.AddCommand(developerAddCmd, developerListCmd, developerShowCmd)
	rootCmd.AddCommand(developerCmd)
}

func addDeveloper(ctx context.Context, w io.Writer, svc *developers.Service, dev types.Developer) error {
	created, err := svc.Create(ctx, dev)
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(w, "%s Registered %s (%s)\n", green("✓"), created.Email, cyan(created.ID))
	return nil
}

func listDevelopers(ctx context.Context, w io.Writer, svc *developers.Service) error {
	devs, err := svc.List(ctx)
	if err != nil {
		return err
	}
	if len(devs) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(w, "%s No developers registered
", yellow("⚠"))
		return nil
	}
	cyan := color.New(color.FgCyan).SprintFunc()
	for _, dev := range devs {
		fmt.Fprintf(w, "%s %s", cyan(dev.ID), dev.Email)
		if dev.Name != "" {
			fmt.Fprintf(w, " (%s)", dev.Name)
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(dev.AssignedURLs, ", "))
	}
	return nil
}

// showDeveloper accepts an e-mail or an id
func showDeveloper(ctx context.Context, w io.Writer, svc *developers.Service, key string) error {
	var (
		dev *types.Developer
		err error
	)
	if strings.Contains(key, "@") {
		dev, err = svc.GetByEmail(ctx, key)
	} else {
		dev, err = svc.Get(ctx, key)
	}
	if err != nil {
		return err
	}

	bugs, err := svc.BugsFor(ctx, dev.ID)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	name := dev.Name
	if name == "" {
		name = dev.Email
	}
	fmt.Fprintf(w, "%s <%s>\n", bold(name), dev.Email)
	fmt.Fprintf(w, "  ID: %s\n", dev.ID)
	for _, u := range dev.AssignedURLs {
		fmt.Fprintf(w, "  Site: %s\n", u)
	}

	if len(bugs) == 0 {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(w, "\n%s No bugs on assigned sites\n", green("✓"))
		return nil
	}
	fmt.Fprintf(w, "\n%d bug(s):\n", len(bugs))
	for _, bug := range bugs {
		fmt.Fprintf(w, "  %s [%s] %s %s\n", cyan(bug.ID), severityLabel(bug.Severity), statusLabel(bug.Status), bug.Title)
	}
	return nil
}
