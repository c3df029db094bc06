// config.go implements "tide config" for reading and editing config.yaml.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tide-dev/tide/internal/config"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show every configuration key with its effective value, after environment
overrides. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := g.dir()
			if err != nil {
				return err
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", dir)
			for _, k := range config.Keys {
				v, _ := cfg.Get(k)
				if isSecret(k) {
					v = mask(v)
				}
				fmt.Fprintf(out, "%-24s %s\n", k, v)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := g.dir()
			if err != nil {
				return err
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value in config.yaml",
		Long: `Set one key in config.yaml. Only the file is changed; environment
overrides still win when tide runs.

Keys: ` + strings.Join(config.Keys, ", "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := g.dir()
			if err != nil {
				return err
			}
			// Start from the file, not Load: environment values must not be persisted.
			cfg, err := config.ReadConfig(dir)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					return err
				}
				cfg = config.DefaultConfig()
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.WriteConfig(dir, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func isSecret(key string) bool {
	return strings.HasSuffix(key, "api_key")
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "********"
	}
	return v[:4] + "..." + v[len(v)-4:]
}
