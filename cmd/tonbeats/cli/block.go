package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

func newBlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Manage user blocks",
		Long:  "Block wallet addresses from recording listens, lift blocks, and list them.",
	}

	cmd.AddCommand(newBlockAddCmd())
	cmd.AddCommand(newBlockLiftCmd())
	cmd.AddCommand(newBlockListCmd())

	return cmd
}

// ---------- block add ----------

func newBlockAddCmd() *cobra.Command {
	var (
		reason   string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Block a wallet address",
		Example: `  tonbeats block add EQC2gnj6... --reason "listen farming"
  tonbeats block add 0:b682... --reason spam --for 72h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlockAdd(args[0], reason, duration)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the address is blocked (required)")
	cmd.Flags().DurationVar(&duration, "for", 0, "Block duration (default: permanent)")
	cmd.MarkFlagRequired("reason")

	return cmd
}

func runBlockAdd(rawAddr, reason string, duration time.Duration) error {
	address, err := tonx.Normalize(rawAddr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", rawAddr, err)
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	block := &model.UserBlock{
		Address:  address,
		Reason:   reason,
		IsActive: true,
	}
	if duration > 0 {
		block.ExpiresAt = sql.NullTime{Time: time.Now().UTC().Add(duration), Valid: true}
	}

	if err := store.CreateBlock(context.Background(), block); err != nil {
		return fmt.Errorf("create block: %w", err)
	}

	if duration > 0 {
		fmt.Printf("Blocked %s until %s\n", address, block.ExpiresAt.Time.Format(time.RFC3339))
	} else {
		fmt.Printf("Blocked %s permanently\n", address)
	}
	return nil
}

// ---------- block lift ----------

func newBlockLiftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lift <address>",
		Short: "Lift the active block on a wallet address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlockLift(args[0])
		},
	}

	return cmd
}

func runBlockLift(rawAddr string) error {
	address, err := tonx.Normalize(rawAddr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", rawAddr, err)
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	n, err := store.LiftBlock(context.Background(), address)
	if err != nil {
		return fmt.Errorf("lift block: %w", err)
	}
	if n == 0 {
		fmt.Printf("No active block on %s\n", address)
		return nil
	}

	fmt.Printf("Lifted block on %s\n", address)
	return nil
}

// ---------- block list ----------

func newBlockListCmd() *cobra.Command {
	var (
		jsonOutput bool
		all        bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List user blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlockList(jsonOutput, all)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "Include lifted and expired blocks")

	return cmd
}

func runBlockList(jsonOutput, all bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	blocks, err := store.ListBlocks(context.Background(), !all)
	if err != nil {
		return fmt.Errorf("list blocks: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(blocks)
	}

	if len(blocks) == 0 {
		fmt.Println("No blocks found.")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-52s %-30s %-26s %-8s\n", "ADDRESS", "REASON", "EXPIRES", "ACTIVE")
	fmt.Printf("%-52s %-30s %-26s %-8s\n", "-------", "------", "-------", "------")
	for _, b := range blocks {
		expires := "never"
		if b.ExpiresAt.Valid {
			expires = b.ExpiresAt.Time.Format(time.RFC3339)
		}
		active := "no"
		if b.InEffect(now) {
			active = "yes"
		}
		fmt.Printf("%-52s %-30s %-26s %-8s\n", b.Address, b.Reason, expires, active)
	}

	return nil
}
