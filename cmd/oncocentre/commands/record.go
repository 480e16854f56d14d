package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	authModels "oncocentre/internal/auth/models"
	"oncocentre/internal/cli/output"
	"oncocentre/internal/cli/prompt"
	recordsModels "oncocentre/internal/records/models"
	id "oncocentre/pkg/domain"
)

const dateLayout = "2006-01-02 15:04"

func newRecordCmd(opts *options) *cobra.Command {
	creds := &credentials{}
	cmd := &cobra.Command{
		Use:     "record",
		Aliases: []string{"records"},
		Short:   "Create and look up patient records",
		Long: `Create and look up patient records. Every subcommand signs in first and
acts with that user's role: members see their own records, principal
investigators see all records, administrators see none.`,
	}
	creds.bind(cmd)
	cmd.AddCommand(
		newRecordCreateCmd(opts, creds),
		newRecordListCmd(opts, creds),
		newRecordShowCmd(opts, creds),
		newRecordPreviewCmd(opts, creds),
	)
	return cmd
}

func newRecordCreateCmd(opts *options, creds *credentials) *cobra.Command {
	var in recordsModels.PatientInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a patient and issue an identifier",
		Long: `Register a patient and issue the next identifier for the current year.
Fields not given as flags are prompted for.`,
		Example: `  oncocentre record create -u alice --ipp 880042 --first-name Louise \
    --last-name Bernard --birth-date 1950-11-30 --sex F`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := creds.login(cmd, s)
			if err != nil {
				return err
			}
			if err := completeInput(&in); err != nil {
				return err
			}
			p, err := s.Records.Create(cmd.Context(), res.Identity, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Patient registered as %s\n", p.ExternalID)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.IPP, "ipp", "", "hospital patient identifier")
	flags.StringVar(&in.FirstName, "first-name", "", "first name")
	flags.StringVar(&in.LastName, "last-name", "", "last name")
	flags.StringVar(&in.BirthDate, "birth-date", "", "birth date (YYYY-MM-DD)")
	flags.StringVar(&in.Sex, "sex", "", "sex (M or F)")
	return cmd
}

// completeInput prompts for every empty field.
func completeInput(in *recordsModels.PatientInput) error {
	fields := []struct {
		label string
		value *string
	}{
		{"IPP", &in.IPP},
		{"First name", &in.FirstName},
		{"Last name", &in.LastName},
		{"Birth date (YYYY-MM-DD)", &in.BirthDate},
	}
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		v, err := prompt.Input(f.label, "")
		if err != nil {
			return err
		}
		*f.value = v
	}
	if in.Sex == "" {
		v, err := prompt.Select("Sex", []string{"M", "F"})
		if err != nil {
			return err
		}
		in.Sex = v
	}
	return nil
}

func newRecordListCmd(opts *options, creds *credentials) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the records visible to the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := creds.login(cmd, s)
			if err != nil {
				return err
			}
			listing, err := s.Records.List(cmd.Context(), res.Identity)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			names := creatorNames(cmd.Context(), s)
			if len(listing.Records) == 0 {
				fmt.Fprintln(out, "No records.")
			} else {
				t := output.NewTable("IDENTIFIER", "IPP", "LAST NAME", "FIRST NAME", "BIRTH DATE", "SEX", "CREATED BY", "CREATED")
				for _, p := range listing.Records {
					t.AddRow(p.ExternalID, p.IPP, p.LastName, p.FirstName, p.BirthDate, p.Sex,
						names.of(p.CreatedBy), p.CreatedAt.Local().Format(dateLayout))
				}
				t.Render(out)
			}

			if len(listing.Unreadable) > 0 {
				fmt.Fprintf(out, "\n%d record(s) could not be decrypted with the current key:\n", len(listing.Unreadable))
				t := output.NewTable("IDENTIFIER", "CREATED BY", "CREATED", "REASON")
				for _, u := range listing.Unreadable {
					t.AddRow(u.ExternalID, names.of(u.CreatedBy), u.CreatedAt.Local().Format(dateLayout), u.Reason)
				}
				t.Render(out)
			}
			return nil
		},
	}
}

func newRecordShowCmd(opts *options, creds *credentials) *cobra.Command {
	return &cobra.Command{
		Use:   "show <identifier>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := creds.login(cmd, s)
			if err != nil {
				return err
			}
			p, err := s.Records.Get(cmd.Context(), res.Identity, args[0])
			if err != nil {
				return err
			}
			output.KeyValues(cmd.OutOrStdout(), [][2]string{
				{"Identifier", p.ExternalID},
				{"IPP", p.IPP},
				{"First name", p.FirstName},
				{"Last name", p.LastName},
				{"Birth date", p.BirthDate},
				{"Sex", p.Sex},
				{"Created by", creatorNames(cmd.Context(), s).of(p.CreatedBy)},
				{"Created", p.CreatedAt.Local().Format(dateLayout)},
			})
			return nil
		},
	}
}

func newRecordPreviewCmd(opts *options, creds *credentials) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Show the identifier the next record would receive",
		Long: `Show the identifier the next record would receive. Nothing is reserved:
a concurrent registration may take it first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := creds.login(cmd, s)
			if err != nil {
				return err
			}
			next, err := s.Records.PreviewNextIdentifier(cmd.Context(), res.Identity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), next)
			return nil
		},
	}
}

// usernames maps identity IDs to usernames for display.
type usernames map[id.IdentityID]string

func (u usernames) of(identityID id.IdentityID) string {
	if name, ok := u[identityID]; ok {
		return name
	}
	return identityID.String()
}

// creatorNames is best effort; unknown creators show as their ID.
func creatorNames(ctx context.Context, s *session) usernames {
	users, err := s.Auth.ListUsers(ctx, authModels.Operator())
	if err != nil {
		s.Logger.WarnContext(ctx, "failed to load usernames", "error", err)
		return usernames{}
	}
	names := make(usernames, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names
}
