package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	authModels "oncocentre/internal/auth/models"
	authService "oncocentre/internal/auth/service"
	"oncocentre/internal/platform/config"
)

func newInitCmd(opts *options) *cobra.Command {
	var (
		force         bool
		dataDir       string
		admin         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file and prepare storage",
		Long: `Write a default configuration file, create the database and the field
encryption key. With --admin, also create a first local administrator.

The field key is generated once. Back it up: records encrypted with it are
unreadable without it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to check config file: %w", err)
			}
			if err := config.Save(config.DefaultAt(dataDir), path); err != nil {
				return err
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			s, err := openWith(cmd, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration written to %s\n", path)
			fmt.Fprintf(out, "Database ready (%s)\n", cfg.Database.Type)
			if s.KeyCreated {
				fmt.Fprintf(out, "Generated field key %s (fingerprint %s). Back it up now.\n", cfg.Cipher.KeyPath, s.Cipher.Fingerprint())
			} else {
				fmt.Fprintf(out, "Using existing field key %s (fingerprint %s)\n", cfg.Cipher.KeyPath, s.Cipher.Fingerprint())
			}

			if admin != "" {
				password, err := readNewPassword(cmd, passwordStdin, authService.MinPasswordLength)
				if err != nil {
					return err
				}
				identity, err := s.Auth.CreateLocalUser(operatorContext(cmd), authModels.Operator(), authService.NewUserRequest{
					Username:        admin,
					Password:        password,
					IsAdministrator: true,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Administrator %s created\n", identity.Username)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for the database and key (default: ./data)")
	cmd.Flags().StringVar(&admin, "admin", "", "create a local administrator with this username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the administrator password from stdin")
	return cmd
}
