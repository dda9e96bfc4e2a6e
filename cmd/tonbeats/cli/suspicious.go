package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newSuspiciousCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "suspicious",
		Aliases: []string{"sus"},
		Short:   "Review suspicious-activity flags",
		Long:    "List and resolve audit records produced by the abuse detector.",
	}

	cmd.AddCommand(newSuspiciousListCmd())
	cmd.AddCommand(newSuspiciousResolveCmd())

	return cmd
}

// ---------- suspicious list ----------

func newSuspiciousListCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List open suspicious-activity flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuspiciousList(jsonOutput, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show")

	return cmd
}

func runSuspiciousList(jsonOutput bool, limit int) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	rows, err := store.ListOpenSuspiciousActivity(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("list suspicious activity: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No open suspicious-activity flags.")
		return nil
	}

	fmt.Printf("%-6s %-52s %-16s %-10s %-20s\n", "ID", "ADDRESS", "TYPE", "SEVERITY", "DETECTED")
	fmt.Printf("%-6s %-52s %-16s %-10s %-20s\n", "--", "-------", "----", "--------", "--------")
	for _, a := range rows {
		fmt.Printf("%-6d %-52s %-16s %-10s %-20s\n",
			a.ID, a.Address, a.ActivityType, a.Severity, a.DetectedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// ---------- suspicious resolve ----------

func newSuspiciousResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a suspicious-activity flag as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return runSuspiciousResolve(id)
		},
	}

	return cmd
}

func runSuspiciousResolve(id int64) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if err := store.ResolveSuspiciousActivity(context.Background(), id); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	fmt.Printf("Resolved flag %d\n", id)
	return nil
}
