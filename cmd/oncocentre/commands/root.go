// Package commands implements the oncocentre command-line tool.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"oncocentre/internal/app"
	authModels "oncocentre/internal/auth/models"
	"oncocentre/internal/cli/prompt"
	"oncocentre/internal/platform/config"
	"oncocentre/internal/platform/logger"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/requestcontext"
)

const defaultConfigFile = "oncocentre.yaml"

// options carries the global flags to every subcommand.
type options struct {
	configFile string
}

// NewRootCmd builds a fresh command tree, so tests can run commands in
// isolation.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "oncocentre",
		Short: "Pseudonymous patient identifiers for oncology research",
		Long: `oncocentre issues stable research identifiers (PREFIX_YEAR_NNNNN) for
patients and keeps their identifying fields encrypted at rest.

Use "oncocentre [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./"+defaultConfigFile+")")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(opts),
		newServeCmd(opts),
		newLoginCmd(opts),
		newUserCmd(opts),
		newWhitelistCmd(opts),
		newRecordCmd(opts),
		newDirectoryCmd(opts),
		newAuditCmd(opts),
	)
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// Describe turns an error into the line shown to the operator. Coded errors
// show only their message; anything else is shown as is.
func Describe(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		if de.Code == dErrors.CodeInternal {
			return fmt.Sprintf("%s (see logs for details)", de.UserMessage())
		}
		return de.UserMessage()
	}
	if errors.Is(err, prompt.ErrAborted) {
		return "aborted"
	}
	return err.Error()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "oncocentre %s\n", app.Version)
		},
	}
}

func (o *options) configPath() string {
	if o.configFile != "" {
		return o.configFile
	}
	return defaultConfigFile
}

func (o *options) loadConfig() (*config.Config, error) {
	return config.Load(o.configFile)
}

// session is an opened application plus the logger it writes to.
type session struct {
	*app.App
	log *logger.Logger
}

func (s *session) Close() error {
	return errors.Join(s.App.Close(), s.log.Close())
}

// open loads configuration and wires the application. Callers must Close it.
func (o *options) open(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return openWith(cmd, cfg)
}

func openWith(cmd *cobra.Command, cfg *config.Config) (*session, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return nil, errors.Join(err, log.Close())
	}
	return &session{App: a, log: log}, nil
}

// operatorContext tags the command's context with the console operator so
// audit entries name who acted.
func operatorContext(cmd *cobra.Command) context.Context {
	ctx := requestcontext.WithNewRequestID(cmd.Context())
	return requestcontext.WithActor(ctx, authModels.OperatorUsername)
}

// readPassword reads from stdin when fromStdin is set, else prompts.
func readPassword(cmd *cobra.Command, fromStdin bool, label string) (string, error) {
	if fromStdin {
		return prompt.ReadLine(cmd.InOrStdin())
	}
	return prompt.Password(label)
}

func readNewPassword(cmd *cobra.Command, fromStdin bool, minLength int) (string, error) {
	if fromStdin {
		return prompt.ReadLine(cmd.InOrStdin())
	}
	return prompt.NewPassword(minLength)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
