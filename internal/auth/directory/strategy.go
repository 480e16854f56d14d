package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"oncocentre/internal/auth/models"
)

// userAttributes is the attribute set harvested on a successful bind.
var userAttributes = []string{
	"distinguishedName", "sAMAccountName", "displayName",
	"mail", "givenName", "sn", "memberOf",
}

// BindStrategy is one way of proving a password to the directory. Strategies
// are tried in order; the first that succeeds wins.
type BindStrategy interface {
	Name() string
	Attempt(ctx context.Context, conn Conn, username, password string) (*models.DirectoryInfo, error)
}

// DomainBind binds directly as DOMAIN\username, then reads the user's own
// entry for attributes. If that read fails the bind still counts and a
// minimal attribute set is returned.
type DomainBind struct {
	cfg    Config
	logger *slog.Logger
}

func NewDomainBind(cfg Config, logger *slog.Logger) *DomainBind {
	return &DomainBind{cfg: cfg, logger: logger}
}

func (s *DomainBind) Name() string { return "domain_bind" }

func (s *DomainBind) Attempt(ctx context.Context, conn Conn, username, password string) (*models.DirectoryInfo, error) {
	var err error
	switch s.cfg.DomainBind {
	case MechanismSimple:
		err = conn.Bind(s.cfg.Domain+`\`+username, password)
	default:
		err = conn.NTLMBind(s.cfg.Domain, username, password)
	}
	if err != nil {
		return nil, classify(err)
	}

	entry, err := searchUser(conn, s.cfg, username, userAttributes)
	if err != nil || entry == nil {
		s.logger.WarnContext(ctx, "directory attribute harvest failed after bind",
			"username", username, "error", err)
		return minimalInfo(username), nil
	}
	return infoFromEntry(username, entry), nil
}

// SearchBind locates the user's DN with a service account (or anonymously),
// then binds as that DN with the caller's password.
type SearchBind struct {
	cfg    Config
	logger *slog.Logger
}

func NewSearchBind(cfg Config, logger *slog.Logger) *SearchBind {
	return &SearchBind{cfg: cfg, logger: logger}
}

func (s *SearchBind) Name() string { return "search_bind" }

func (s *SearchBind) Attempt(ctx context.Context, conn Conn, username, password string) (*models.DirectoryInfo, error) {
	if err := serviceBind(conn, s.cfg); err != nil {
		s.logger.ErrorContext(ctx, "directory service bind failed", "error", err)
		return nil, err
	}

	entry, err := searchUser(conn, s.cfg, username, userAttributes)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: user %q not found", ErrRejected, username)
	}

	dn := entryDN(entry)
	if dn == "" {
		return nil, fmt.Errorf("%w: entry for %q has no distinguished name", ErrRejected, username)
	}
	if err := conn.Bind(dn, password); err != nil {
		return nil, classify(err)
	}
	return infoFromEntry(username, entry), nil
}

// serviceBind authenticates the connection for searching. Without a
// configured service account the connection stays anonymous. A rejected
// service account is a configuration fault, so it reports unavailable.
func serviceBind(conn Conn, cfg Config) error {
	if !cfg.HasServiceAccount() {
		return nil
	}
	if err := conn.Bind(cfg.BindUser, cfg.BindPassword); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return fmt.Errorf("%w: service account rejected: %w", ErrUnavailable, err)
		}
		return classify(err)
	}
	return nil
}

// searchUser returns the first entry matching the user filter, or nil when
// there is none.
func searchUser(conn Conn, cfg Config, username string, attrs []string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		cfg.UserSearchBase,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		2, int(cfg.Timeout.Seconds()), false,
		cfg.UserFilter(username),
		attrs,
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		// A size limit hit still returns the entries read so far.
		if ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && res != nil && len(res.Entries) > 0 {
			return res.Entries[0], nil
		}
		return nil, classify(err)
	}
	if res == nil || len(res.Entries) == 0 {
		return nil, nil
	}
	return res.Entries[0], nil
}

func entryDN(e *ldap.Entry) string {
	if dn := e.GetAttributeValue("distinguishedName"); dn != "" {
		return dn
	}
	return e.DN
}

func infoFromEntry(username string, e *ldap.Entry) *models.DirectoryInfo {
	display := strings.TrimSpace(e.GetAttributeValue("displayName"))
	if display == "" {
		display = username
	}
	return &models.DirectoryInfo{
		Username:          username,
		DistinguishedName: entryDN(e),
		DisplayName:       display,
		Email:             e.GetAttributeValue("mail"),
		GivenName:         e.GetAttributeValue("givenName"),
		Surname:           e.GetAttributeValue("sn"),
		Groups:            e.GetAttributeValues("memberOf"),
	}
}

func minimalInfo(username string) *models.DirectoryInfo {
	return &models.DirectoryInfo{Username: username, DisplayName: username}
}
