package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/scribe/internal/credential"
)

const secretSuffix = ".api_key"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored settings and API keys",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Keys ending in .api_key (for example
openai.api_key or google.api_key) are encrypted before they are stored.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to init store: %w", err)
		}
		defer s.Close()

		if name, ok := secretName(key); ok {
			vault, err := openVault(s)
			if err != nil {
				return err
			}
			if err := vault.Put(name, value); err != nil {
				return fmt.Errorf("failed to set config: %w", err)
			}
		} else if err := s.SetConfig(key, value); err != nil {
			return fmt.Errorf("failed to set config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", key)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to init store: %w", err)
		}
		defer s.Close()

		var val string
		if name, ok := secretName(key); ok {
			vault, err := openVault(s)
			if err != nil {
				return err
			}
			if val, err = vault.Get(name); err != nil {
				return err
			}
			if val != "" {
				val = credential.Mask(val)
			}
		} else if val, err = s.GetConfig(key); err != nil {
			return err
		}

		if val == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), val)
		}
		return nil
	},
}

func secretName(key string) (string, bool) {
	if !strings.HasSuffix(key, secretSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(key, secretSuffix)
	return name, name != ""
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}
