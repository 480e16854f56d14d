package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	authModels "oncocentre/internal/auth/models"
	authService "oncocentre/internal/auth/service"
	"oncocentre/internal/cli/output"
	"oncocentre/internal/cli/prompt"
	"oncocentre/pkg/requestcontext"
)

// credentials are the flags every command that acts as a user takes.
type credentials struct {
	username      string
	method        string
	passwordStdin bool
}

func (c *credentials) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&c.username, "username", "u", "", "username to sign in as")
	flags.StringVar(&c.method, "method", "auto", "authentication method: auto, local or directory")
	flags.BoolVar(&c.passwordStdin, "password-stdin", false, "read the password from stdin")
}

// login authenticates the user. On success the command context names them
// as the actor.
func (c *credentials) login(cmd *cobra.Command, s *session) (*authService.LoginResult, error) {
	method, err := authModels.ParseMethod(c.method)
	if err != nil {
		return nil, err
	}
	username := c.username
	if username == "" {
		if username, err = prompt.Input("Username", ""); err != nil {
			return nil, err
		}
	}
	password, err := readPassword(cmd, c.passwordStdin, "Password")
	if err != nil {
		return nil, err
	}
	ctx := requestcontext.WithNewRequestID(cmd.Context())
	res, err := s.Auth.Login(ctx, authService.LoginRequest{Username: username, Password: password, Method: method})
	if err != nil {
		return nil, err
	}
	cmd.SetContext(requestcontext.WithActor(ctx, res.Identity.Username))
	return res, nil
}

func newLoginCmd(opts *options) *cobra.Command {
	creds := &credentials{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check that a user can sign in",
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
			id := res.Identity
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s\n", id.FullName())
			output.KeyValues(out, [][2]string{
				{"Username", id.Username},
				{"Role", id.Role().String()},
				{"Source", string(res.Source)},
				{"Email", id.Email},
			})
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}
