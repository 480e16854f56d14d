package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"oncocentre/internal/cli/output"
	"oncocentre/pkg/platform/audit"
)

func newAuditCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(newAuditListCmd(opts))
	return cmd
}

func newAuditListCmd(opts *options) *cobra.Command {
	var (
		subject string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit events",
		Example: `  oncocentre audit list --limit 20
  oncocentre audit list --subject ONCOCENTRE_2025_00001`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var events []audit.Event
			if subject != "" {
				events, err = s.Audit.ListBySubject(cmd.Context(), subject)
			} else {
				events, err = s.Audit.ListRecent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(events) > limit {
				events = events[:limit]
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events.")
				return nil
			}
			t := output.NewTable("TIME", "CATEGORY", "ACTION", "SUBJECT", "ACTOR", "DECISION", "REASON")
			for _, e := range events {
				t.AddRow(e.Timestamp.Local().Format("2006-01-02 15:04:05"), string(e.Category), e.Action,
					e.Subject, e.ActorID, e.Decision, e.Reason)
			}
			t.Render(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "only events about this username or record identifier")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	return cmd
}
