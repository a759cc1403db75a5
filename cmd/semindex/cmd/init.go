package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semindex/configs"
	"github.com/Aman-CERP/semindex/internal/config"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented " + config.ProjectFileName + " to the project root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}

			path := filepath.Join(root, config.ProjectFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return semerrors.ValidationError("config file already exists", nil).
					WithDetail("path", path).
					WithSuggestion("use --force to overwrite")
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return semerrors.ConfigError("failed to check config file", err)
			}

			if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
				return semerrors.ConfigError("failed to write config file", err).WithDetail("path", path)
			}
			output.New(cmd.OutOrStdout()).Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}
