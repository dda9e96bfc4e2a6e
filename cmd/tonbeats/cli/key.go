package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tonbeats/tonbeats/internal/service"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke API keys bound to wallet addresses.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "create <address>",
		Short: "Create a new API key for a wallet address",
		Long:  "Mint an API key bound to a wallet address, replacing any existing key. The raw key is shown once and cannot be retrieved again.",
		Example: `  tonbeats key create EQC2gnj6teTq7ZVBkXV2pDwd9GpZZ0a6ZshT5Yf4K8VzB1gd
  tonbeats key create 0:b682... --ttl 24h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(args[0], ttl)
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", service.DefaultAPIKeyTTL, "Key lifetime")

	return cmd
}

func runKeyCreate(rawAddr string, ttl time.Duration) error {
	address, err := tonx.Normalize(rawAddr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", rawAddr, err)
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	creds := service.NewCredentialIssuer(store, viper.GetString("auth.jwt_secret")).
		WithTTLs(ttl, 0)

	rawKey, expiresAt, err := creds.IssueAPIKey(context.Background(), address)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:     %s\n", rawKey)
	fmt.Printf("  Address: %s\n", address)
	fmt.Printf("  Expires: %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	keys, err := store.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	type keyRow struct {
		Prefix  string `json:"prefix"`
		Address string `json:"address"`
		Expires string `json:"expires_at"`
		Expired bool   `json:"expired"`
	}

	now := time.Now()
	rows := make([]keyRow, len(keys))
	for i, k := range keys {
		rows[i] = keyRow{
			Prefix:  k.KeyPrefix,
			Address: k.Address,
			Expires: k.ExpiresAt.Format(time.RFC3339),
			Expired: k.IsExpired(now),
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys issued. Use 'tonbeats key create' to create one.")
		return nil
	}

	fmt.Printf("%-12s %-52s %-26s %-8s\n", "PREFIX", "ADDRESS", "EXPIRES", "EXPIRED")
	fmt.Printf("%-12s %-52s %-26s %-8s\n", "------", "-------", "-------", "-------")
	for _, k := range rows {
		expired := "no"
		if k.Expired {
			expired = "yes"
		}
		fmt.Printf("%-12s %-52s %-26s %-8s\n", k.Prefix, k.Address, k.Expires, expired)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Delete an API key, preventing any further authenticated requests using that key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(prefix string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	for i := range keys {
		if strings.HasPrefix(keys[i].KeyPrefix, prefix) {
			if err := store.DeleteAPIKeyByHash(ctx, keys[i].KeyHash); err != nil {
				return fmt.Errorf("revoke api key: %w", err)
			}
			fmt.Printf("Revoked API key with prefix %q (address %s)\n", keys[i].KeyPrefix, keys[i].Address)
			return nil
		}
	}

	return fmt.Errorf("no API key found with prefix %q", prefix)
}
