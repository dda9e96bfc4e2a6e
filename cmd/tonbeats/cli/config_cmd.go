package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/tonbeats/tonbeats/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage TONBeats configuration",
		Long:  "Initialize a default configuration file, display the effective configuration, or store settings.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigSetSecretCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default tonbeats.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

func runConfigInit(force bool) error {
	path := "tonbeats.yaml"
	if cfgFile != "" {
		path = cfgFile
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigShow() error {
	path := "tonbeats.yaml"
	if cfgFile != "" {
		path = cfgFile
	}

	cfg, err := config.LoadYAMLConfig(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.DefaultYAMLConfig()
		} else {
			return err
		}
	}

	// Never print the secret itself.
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = "********"
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

// ---------- config set ----------

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting in the storage backend",
		Example: `  tonbeats config set telemetry.enabled false
  tonbeats config set instance_id my-node`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}

	return cmd
}

func runConfigSet(key, value string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if err := store.SetSetting(context.Background(), key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	fmt.Printf("Set %s\n", key)
	return nil
}

// ---------- config set-secret ----------

func newConfigSetSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-secret",
		Short: "Store the JWT signing secret",
		Long:  "Prompt for the JWT signing secret without echoing it and persist it in the storage backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSetSecret()
		},
	}

	return cmd
}

func runConfigSetSecret() error {
	var secret string

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("JWT secret: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = string(raw)
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimSpace(line)
	}

	if len(secret) < 16 {
		return fmt.Errorf("secret must be at least 16 characters")
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if err := store.SetSetting(context.Background(), "auth.jwt_secret", secret); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	fmt.Println("JWT secret stored.")
	return nil
}
