package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srkrambo/mock-server/internal/apikeys"
	"github.com/srkrambo/mock-server/internal/config"
)

var (
	keysGenerateBy       string
	keysGenerateMetadata []string
	keysListAll          bool
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys without a running server",
	Long: `Operate directly on the persisted API key collection.

Uses the same storage the server uses, so keys created here are valid
immediately. The full key is only shown once during generation; listings
show a masked form.`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key",
	Long: `Generate a cryptographically random API key and persist it.

Examples:
  mockd keys generate
  mockd keys generate --by=ci@example.com --meta env=staging --meta team=payments`,
	RunE: runKeysGenerate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys (masked)",
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysListCmd, keysRevokeCmd)

	keysGenerateCmd.Flags().StringVar(&keysGenerateBy, "by", "", "Issuing identity recorded in the key metadata")
	keysGenerateCmd.Flags().StringArrayVar(&keysGenerateMetadata, "meta", nil, "Extra metadata as key=value, repeatable")
	keysListCmd.Flags().BoolVar(&keysListAll, "all", false, "Include revoked and superseded keys")
}

func openKeyManager() (*apikeys.Manager, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	stores, err := openBackends(cfg, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	manager := apikeys.NewManager(stores.apiKeys,
		apikeys.WithStaticKeys(cfg.Auth.StaticAPIKeys),
		apikeys.WithProductionMode(cfg.IsProduction()))
	return manager, stores.Close, nil
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	manager, closeStores, err := openKeyManager()
	if err != nil {
		return err
	}
	defer closeStores()

	metadata := map[string]string{"auth_method": "cli"}
	if keysGenerateBy != "" {
		metadata["generated_by"] = keysGenerateBy
	}
	for _, pair := range keysGenerateMetadata {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return fmt.Errorf("invalid metadata %q: expected key=value", pair)
		}
		metadata[parts[0]] = parts[1]
	}

	key, err := manager.Generate(context.Background(), metadata)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	fmt.Println("✅ API key generated")
	fmt.Printf("   Key:     %s\n", key.Key)
	fmt.Printf("   Created: %s\n", key.CreatedAt.Format(time.RFC3339))
	fmt.Println("⚠️  Save this key now, listings only show a masked form")
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	manager, closeStores, err := openKeyManager()
	if err != nil {
		return err
	}
	defer closeStores()

	keys, err := manager.List(context.Background(), keysListAll)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("No API keys found")
		return nil
	}

	fmt.Printf("%-26s %-20s %-8s %-6s %s\n", "KEY", "CREATED", "ACTIVE", "USES", "GENERATED BY")
	for _, key := range keys {
		fmt.Printf("%-26s %-20s %-8t %-6d %s\n",
			key.Masked(),
			key.CreatedAt.Format("2006-01-02 15:04:05"),
			key.Active,
			key.UsageCount,
			key.Metadata["generated_by"])
	}
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	manager, closeStores, err := openKeyManager()
	if err != nil {
		return err
	}
	defer closeStores()

	revoked, err := manager.Revoke(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	if !revoked {
		return fmt.Errorf("key not found or already revoked")
	}
	fmt.Println("✅ Key revoked")
	return nil
}
