package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/go-ldap/ldap/v3"

	"oncocentre/pkg/platform/sentinel"
)

var (
	// ErrRejected means the directory was reachable and refused the
	// credentials, or does not know the user.
	ErrRejected = errors.New("directory rejected credentials")
	// ErrUnavailable means the directory could not give an answer.
	ErrUnavailable = fmt.Errorf("directory %w", sentinel.ErrUnavailable)
)

// Conn is the subset of *ldap.Conn the strategies use.
type Conn interface {
	Bind(username, password string) error
	NTLMBind(domain, username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// Dialer opens a fresh connection per authentication attempt.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// NetDialer dials the configured server over TCP, with TLS when configured.
type NetDialer struct {
	cfg Config
}

func NewNetDialer(cfg Config) *NetDialer {
	return &NetDialer{cfg: cfg}
}

func (d *NetDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: d.cfg.Timeout}),
	}
	if d.cfg.UseTLS {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{
			ServerName:         d.cfg.Host(),
			InsecureSkipVerify: d.cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}))
	}
	c, err := ldap.DialURL(d.cfg.URL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrUnavailable, d.cfg.URL(), err)
	}
	c.SetTimeout(d.cfg.Timeout)
	return &ldapConn{c: c}, nil
}

type ldapConn struct {
	c *ldap.Conn
}

func (l *ldapConn) Bind(username, password string) error {
	return l.c.Bind(username, password)
}

func (l *ldapConn) NTLMBind(domain, username, password string) error {
	return l.c.NTLMBind(domain, username, password)
}

func (l *ldapConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return l.c.Search(req)
}

func (l *ldapConn) Close() error {
	l.c.Close()
	return nil
}

// classify sorts an LDAP error into ErrUnavailable or ErrRejected.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRejected) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		switch ldapErr.ResultCode {
		case ldap.ErrorNetwork, ldap.LDAPResultBusy, ldap.LDAPResultUnavailable,
			ldap.LDAPResultTimeLimitExceeded:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrRejected, err)
}
