package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	authModels "oncocentre/internal/auth/models"
	authService "oncocentre/internal/auth/service"
	"oncocentre/internal/cli/output"
	"oncocentre/internal/cli/prompt"
)

func newUserCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long: `Manage local and directory user accounts. These commands run as the
console operator, who holds the administrator role.`,
	}
	cmd.AddCommand(
		newUserCreateCmd(opts),
		newUserListCmd(opts),
		newUserUpdateCmd(opts),
		newUserPasswdCmd(opts),
		newUserDeleteCmd(opts),
		newUserStatsCmd(opts),
		newUserUnlockCmd(opts),
	)
	return cmd
}

func newUserCreateCmd(opts *options) *cobra.Command {
	var (
		admin, pi     bool
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a local user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			password, err := readNewPassword(cmd, passwordStdin, authService.MinPasswordLength)
			if err != nil {
				return err
			}
			identity, err := s.Auth.CreateLocalUser(operatorContext(cmd), authModels.Operator(), authService.NewUserRequest{
				Username:                args[0],
				Password:                password,
				IsAdministrator:         admin,
				IsPrincipalInvestigator: pi,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s created (%s)\n", identity.Username, identity.Role())
			if !s.Whitelist.IsAuthorized(cmd.Context(), identity.Username) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not whitelisted yet; run: oncocentre whitelist add %s\n", identity.Username, identity.Username)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the administrator role")
	cmd.Flags().BoolVar(&pi, "pi", false, "grant the principal investigator role")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newUserListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			users, err := s.Auth.ListUsers(operatorContext(cmd), authModels.Operator())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users.")
				return nil
			}
			t := output.NewTable("USERNAME", "NAME", "ROLE", "SOURCE", "ACTIVE", "WHITELISTED")
			for _, u := range users {
				t.AddRow(u.Username, u.FullName(), u.Role().String(), string(u.AuthSource),
					yesNo(u.Active), yesNo(s.Whitelist.IsAuthorized(cmd.Context(), u.Username)))
			}
			t.Render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newUserUpdateCmd(opts *options) *cobra.Command {
	var admin, pi, active bool
	cmd := &cobra.Command{
		Use:   "update <username>",
		Short: "Change a user's roles or active flag",
		Example: `  oncocentre user update alice --pi
  oncocentre user update bob --active=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req authService.UpdateUserRequest
			flags := cmd.Flags()
			if flags.Changed("admin") {
				req.IsAdministrator = &admin
			}
			if flags.Changed("pi") {
				req.IsPrincipalInvestigator = &pi
			}
			if flags.Changed("active") {
				req.Active = &active
			}
			if req == (authService.UpdateUserRequest{}) {
				return fmt.Errorf("nothing to update; pass --admin, --pi or --active")
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			identity, err := s.Auth.UpdateUser(operatorContext(cmd), authModels.Operator(), args[0], req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s updated: role %s, active %s\n",
				identity.Username, identity.Role(), yesNo(identity.Active))
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "administrator role")
	cmd.Flags().BoolVar(&pi, "pi", false, "principal investigator role")
	cmd.Flags().BoolVar(&active, "active", true, "whether the account may sign in")
	return cmd
}

func newUserPasswdCmd(opts *options) *cobra.Command {
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Reset a local user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			password, err := readNewPassword(cmd, passwordStdin, authService.MinPasswordLength)
			if err != nil {
				return err
			}
			if err := s.Auth.ResetPassword(operatorContext(cmd), authModels.Operator(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password for %s reset\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newUserDeleteCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user, or deactivate one who owns records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := prompt.Confirm(fmt.Sprintf("Delete user %s", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			outcome, err := s.Auth.DeleteUser(operatorContext(cmd), authModels.Operator(), args[0])
			if err != nil {
				return err
			}
			switch outcome {
			case authService.DeleteOutcomeDeactivated:
				fmt.Fprintf(cmd.OutOrStdout(), "User %s owns records and was deactivated instead\n", args[0])
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "User %s deleted\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newUserStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show user and record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.Auth.Stats(operatorContext(cmd), authModels.Operator())
			if err != nil {
				return err
			}
			output.KeyValues(cmd.OutOrStdout(), [][2]string{
				{"Users", strconv.Itoa(st.Total)},
				{"Active", strconv.Itoa(st.Active)},
				{"Administrators", strconv.Itoa(st.Administrators)},
				{"Principal investigators", strconv.Itoa(st.PrincipalInvestigators)},
				{"Directory accounts", strconv.Itoa(st.Directory)},
				{"Records", strconv.Itoa(st.Records)},
			})
			return nil
		},
	}
}

func newUserUnlockCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <username>",
		Short: "Clear a lockout after repeated failed logins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			cleared, err := s.Lockout.Unlock(operatorContext(cmd), args[0])
			if err != nil {
				return err
			}
			if !cleared {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no recorded failures\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s unlocked\n", args[0])
			return nil
		},
	}
}
