package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openclaw/memdex/internal/config"
	"github.com/openclaw/memdex/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Init writes a configuration file with the default settings to
~/.config/memdex/config.yaml (or $XDG_CONFIG_HOME/memdex/config.yaml)
and creates the data directory. Edit the sources section afterwards
to point at your markdown directories.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(os.Stdout)
			path := config.GetUserConfigPath()

			if config.UserConfigExists() && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.NewConfig()
			if err := cfg.WriteYAML(path); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}

			out.Successf("wrote %s", path)
			out.Field("data dir", cfg.Storage.DataDir)
			out.Newline()
			out.Printf("Edit the sources section, then run 'memdex ingest'.\n")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}
