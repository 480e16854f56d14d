package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"oncocentre/internal/auth/directory"
	"oncocentre/internal/cli/output"
)

func newDirectoryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Diagnose the directory (LDAP) connection",
	}
	cmd.AddCommand(newDirectoryTestCmd(opts), newDirectoryGroupsCmd(opts))
	return cmd
}

// directoryClient builds a client from the configuration whether or not
// directory sign-in is enabled, so the settings can be tried first.
func directoryClient(opts *options) (*directory.Client, directory.Config, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, directory.Config{}, err
	}
	dc := cfg.Directory
	if err := dc.Validate(); err != nil {
		return nil, dc, err
	}
	return directory.NewClient(dc, directory.NewNetDialer(dc)), dc, nil
}

func newDirectoryTestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Connect to the directory and bind with the service account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, dc, err := directoryClient(opts)
			if err != nil {
				return err
			}
			if err := client.TestConnection(cmd.Context()); err != nil {
				return err
			}
			mode := "anonymous search"
			if dc.HasServiceAccount() {
				mode = "service account bind"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s (%s)\n", dc.URL(), mode)
			return nil
		},
	}
}

func newDirectoryGroupsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "groups <username>",
		Short: "List a user's directory groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := directoryClient(opts)
			if err != nil {
				return err
			}
			groups, err := client.Groups(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no groups\n", args[0])
				return nil
			}
			t := output.NewTable("GROUP")
			for _, g := range groups {
				t.AddRow(g)
			}
			t.Render(cmd.OutOrStdout())
			return nil
		},
	}
}
