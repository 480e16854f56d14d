// Package directory authenticates users against an LDAP / Active Directory
// server and reads their attributes.
package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-ldap/ldap/v3"

	"oncocentre/internal/auth/models"
)

// Client runs the configured bind strategies against the directory.
// It keeps no connection between calls.
type Client struct {
	cfg        Config
	dialer     Dialer
	strategies []BindStrategy
	logger     *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithStrategies replaces the default strategy order.
func WithStrategies(strategies ...BindStrategy) Option {
	return func(c *Client) {
		c.strategies = strategies
	}
}

// NewClient builds a client. Without WithStrategies it tries a domain bind
// (when a domain is configured) and then a search+bind.
func NewClient(cfg Config, dialer Dialer, opts ...Option) *Client {
	c := &Client{cfg: cfg, dialer: dialer, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(c)
	}
	if c.strategies == nil {
		if cfg.Domain != "" {
			c.strategies = append(c.strategies, NewDomainBind(cfg, c.logger))
		}
		c.strategies = append(c.strategies, NewSearchBind(cfg, c.logger))
	}
	return c
}

// Authenticate verifies username/password with each strategy in turn.
//
// It returns ErrRejected when at least one strategy reached the directory and
// none succeeded, and ErrUnavailable when no strategy got an answer at all.
// An empty password is rejected without any network traffic, since many
// directories treat it as an anonymous bind that "succeeds".
func (c *Client) Authenticate(ctx context.Context, username, password string) (*models.DirectoryInfo, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: empty username or password", ErrRejected)
	}
	if len(c.strategies) == 0 {
		return nil, fmt.Errorf("%w: no bind strategies configured", ErrUnavailable)
	}

	var rejected, unavailable []error
	for _, strategy := range c.strategies {
		start := time.Now()
		info, err := c.attempt(ctx, strategy, username, password)
		if err == nil {
			c.logger.InfoContext(ctx, "directory authentication succeeded",
				"username", username, "strategy", strategy.Name(), "duration", time.Since(start))
			return info, nil
		}
		c.logger.DebugContext(ctx, "directory strategy failed",
			"username", username, "strategy", strategy.Name(), "error", err)
		if errors.Is(err, ErrUnavailable) {
			unavailable = append(unavailable, err)
		} else {
			rejected = append(rejected, err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
	}

	if len(rejected) == 0 {
		return nil, errors.Join(unavailable...)
	}
	return nil, errors.Join(rejected...)
}

func (c *Client) attempt(ctx context.Context, strategy BindStrategy, username, password string) (*models.DirectoryInfo, error) {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, classify(err)
	}
	defer conn.Close()
	return strategy.Attempt(ctx, conn, username, password)
}

// TestConnection dials the directory and performs the search bind, or a
// root DSE read when there is no service account.
func (c *Client) TestConnection(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return classify(err)
	}
	defer conn.Close()

	if c.cfg.HasServiceAccount() {
		return serviceBind(conn, c.cfg)
	}
	_, err = conn.Search(ldap.NewSearchRequest(
		"", ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		1, int(c.cfg.Timeout.Seconds()), false,
		"(objectClass=*)", []string{"namingContexts"}, nil,
	))
	return classify(err)
}

// Groups returns the memberOf values for username using the search
// credentials. An unknown user has no groups.
func (c *Client) Groups(ctx context.Context, username string) ([]string, error) {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, classify(err)
	}
	defer conn.Close()

	if err := serviceBind(conn, c.cfg); err != nil {
		return nil, err
	}
	entry, err := searchUser(conn, c.cfg, username, []string{"memberOf"})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return []string{}, nil
	}
	return entry.GetAttributeValues("memberOf"), nil
}
