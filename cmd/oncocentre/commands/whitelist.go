package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	authModels "oncocentre/internal/auth/models"
	"oncocentre/internal/cli/output"
	whitelistService "oncocentre/internal/whitelist/service"
)

func newWhitelistCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage who may use the application",
		Long: `Manage the whitelist. While the whitelist table is empty, the usernames in
whitelist.fallback_users (or AUTHORIZED_USERS) are used instead; once it holds
any entry it is the only source.`,
	}
	cmd.AddCommand(
		newWhitelistAddCmd(opts),
		newWhitelistRemoveCmd(opts),
		newWhitelistActivateCmd(opts),
		newWhitelistListCmd(opts),
		newWhitelistMigrateCmd(opts),
		newWhitelistCheckCmd(opts),
	)
	return cmd
}

func newWhitelistAddCmd(opts *options) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Allow a username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Whitelist.Add(operatorContext(cmd), args[0], authModels.Operator(), note)
			if err != nil {
				return err
			}
			switch res.Outcome {
			case whitelistService.OutcomeReactivated:
				fmt.Fprintf(cmd.OutOrStdout(), "%s reactivated\n", res.Entry.Username)
			case whitelistService.OutcomeAlreadyPresent:
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already whitelisted\n", res.Entry.Username)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s added\n", res.Entry.Username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "why this user was added")
	return cmd
}

func newWhitelistRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <username>",
		Short: "Deactivate a whitelist entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Whitelist.Remove(operatorContext(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", args[0])
			return nil
		},
	}
}

func newWhitelistActivateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <username>",
		Short: "Reactivate a removed whitelist entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			entry, err := s.Whitelist.Activate(operatorContext(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s activated\n", entry.Username)
			return nil
		},
	}
}

func newWhitelistListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List whitelist entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.Whitelist.List(operatorContext(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fallback := s.Whitelist.FallbackUsernames()
				if len(fallback) == 0 {
					fmt.Fprintln(out, "The whitelist is empty and no fallback users are configured; nobody can sign in.")
					return nil
				}
				fmt.Fprintf(out, "The whitelist is empty; using fallback users: %s\n", strings.Join(fallback, ", "))
				return nil
			}
			t := output.NewTable("USERNAME", "ACTIVE", "ADDED BY", "ADDED", "NOTE")
			for _, e := range entries {
				t.AddRow(e.Username, yesNo(e.Active), e.AddedByName, e.CreatedAt.Format("2006-01-02"), e.Note)
			}
			t.Render(out)
			return nil
		},
	}
}

func newWhitelistMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy the configured fallback users into the whitelist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			added, err := s.Whitelist.MigrateFromFallback(operatorContext(cmd), authModels.Operator())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d user(s) migrated\n", added)
			return nil
		},
	}
}

func newWhitelistCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check <username>",
		Short: "Show whether a username may sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			d := s.Whitelist.Check(operatorContext(cmd), args[0])
			verdict := "denied"
			if d.Allowed {
				verdict = "allowed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (source: %s)\n", args[0], verdict, d.Source)
			return nil
		},
	}
}
