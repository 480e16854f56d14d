package directory

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// UsernamePlaceholder is substituted (escaped) into UserSearchFilter.
const UsernamePlaceholder = "{username}"

// Bind mechanisms for the domain bind strategy.
const (
	MechanismSimple = "simple"
	MechanismNTLM   = "ntlm"
)

// Config describes how to reach and query the directory.
type Config struct {
	// Server is a host name or an ldap:// / ldaps:// URL.
	Server             string        `mapstructure:"server" yaml:"server"`
	Port               int           `mapstructure:"port" yaml:"port"`
	UseTLS             bool          `mapstructure:"use_tls" yaml:"use_tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Domain             string        `mapstructure:"domain" yaml:"domain"`
	DomainBind         string        `mapstructure:"domain_bind_mechanism" yaml:"domain_bind_mechanism" validate:"omitempty,oneof=simple ntlm"`
	BaseDN             string        `mapstructure:"base_dn" yaml:"base_dn"`
	UserSearchBase     string        `mapstructure:"user_search_base" yaml:"user_search_base"`
	UserSearchFilter   string        `mapstructure:"user_search_filter" yaml:"user_search_filter"`
	BindUser           string        `mapstructure:"bind_user" yaml:"bind_user"`
	BindPassword       string        `mapstructure:"bind_password" yaml:"bind_password,omitempty"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ApplyDefaults fills in the values an Active Directory deployment expects.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		if c.UseTLS {
			c.Port = 636
		} else {
			c.Port = 389
		}
	}
	if c.DomainBind == "" {
		c.DomainBind = MechanismNTLM
	}
	if c.UserSearchFilter == "" {
		c.UserSearchFilter = "(sAMAccountName=" + UsernamePlaceholder + ")"
	}
	if c.UserSearchBase == "" {
		c.UserSearchBase = c.BaseDN
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate checks the configuration is usable. It is only called when
// directory authentication is enabled.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("directory server is required")
	}
	if c.UserSearchBase == "" {
		return fmt.Errorf("directory user search base is required")
	}
	if !strings.Contains(c.UserSearchFilter, UsernamePlaceholder) {
		return fmt.Errorf("directory user search filter must contain %s", UsernamePlaceholder)
	}
	if c.DomainBind != MechanismSimple && c.DomainBind != MechanismNTLM {
		return fmt.Errorf("unsupported domain bind mechanism: %s", c.DomainBind)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("directory timeout must be positive")
	}
	return nil
}

// URL returns the dial URL. An explicit scheme in Server wins over UseTLS.
func (c *Config) URL() string {
	scheme := "ldap"
	if c.UseTLS {
		scheme = "ldaps"
	}
	host := c.Server
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			scheme = u.Scheme
			host = u.Host
		}
	}
	if _, _, err := net.SplitHostPort(host); err != nil && c.Port != 0 {
		host = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}
	return scheme + "://" + host
}

// Host returns the server host name without scheme or port, for TLS SNI.
func (c *Config) Host() string {
	u, err := url.Parse(c.URL())
	if err != nil {
		return c.Server
	}
	return u.Hostname()
}

// UserFilter renders UserSearchFilter for username with filter escaping, so
// a username like "*)(uid=*" cannot widen the search.
func (c *Config) UserFilter(username string) string {
	return strings.ReplaceAll(c.UserSearchFilter, UsernamePlaceholder, ldap.EscapeFilter(username))
}

// HasServiceAccount reports whether searches should bind as a service account
// rather than anonymously.
func (c *Config) HasServiceAccount() bool {
	return c.BindUser != "" && c.BindPassword != ""
}
