package directory_test

//go:generate mockgen -source=conn.go -destination=mocks/mocks.go -package=mocks Conn,Dialer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"oncocentre/internal/auth/directory"
	"oncocentre/internal/auth/directory/mocks"
)

type ClientSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	dialer *mocks.MockDialer
	cfg    directory.Config
	logger *slog.Logger
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.dialer = mocks.NewMockDialer(s.ctrl)
	s.cfg = directory.Config{
		Server:         "dc.example.org",
		Domain:         "EXAMPLE",
		BaseDN:         "DC=example,DC=org",
		UserSearchBase: "OU=Users,DC=example,DC=org",
		BindUser:       "CN=svc,DC=example,DC=org",
		BindPassword:   "svc-secret",
	}
	s.cfg.ApplyDefaults()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *ClientSuite) client() *directory.Client {
	return directory.NewClient(s.cfg, s.dialer, directory.WithLogger(s.logger))
}

// conn returns a connection mock that the client will get from the next Dial.
func (s *ClientSuite) conn() *mocks.MockConn {
	c := mocks.NewMockConn(s.ctrl)
	c.EXPECT().Close().Return(nil).AnyTimes()
	s.dialer.EXPECT().Dial(gomock.Any()).Return(c, nil)
	return c
}

func invalidCredentials() error {
	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("80090308: LdapErr: DSID-0C09044E, data 52e"))
}

func networkError() error {
	return ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset"))
}

func jdoeEntry() *ldap.Entry {
	return ldap.NewEntry("CN=John Doe,OU=Users,DC=example,DC=org", map[string][]string{
		"distinguishedName": {"CN=John Doe,OU=Users,DC=example,DC=org"},
		"sAMAccountName":    {"jdoe"},
		"displayName":       {"John Doe"},
		"mail":              {"jdoe@example.org"},
		"givenName":         {"John"},
		"sn":                {"Doe"},
		"memberOf":          {"CN=Oncology,OU=Groups,DC=example,DC=org"},
	})
}

func (s *ClientSuite) TestEmptyPasswordNeverDials() {
	// no Dial expectation: any network attempt fails the test
	_, err := s.client().Authenticate(context.Background(), "jdoe", "")
	s.Require().ErrorIs(err, directory.ErrRejected)
}

func (s *ClientSuite) TestDomainBindSucceeds() {
	c := s.conn()
	c.EXPECT().NTLMBind("EXAMPLE", "jdoe", "pw").Return(nil)
	c.EXPECT().Search(gomock.Any()).Return(&ldap.SearchResult{Entries: []*ldap.Entry{jdoeEntry()}}, nil)

	info, err := s.client().Authenticate(context.Background(), "jdoe", "pw")
	s.Require().NoError(err)
	s.Equal("jdoe", info.Username)
	s.Equal("CN=John Doe,OU=Users,DC=example,DC=org", info.DistinguishedName)
	s.Equal("jdoe@example.org", info.Email)
	s.Equal("John", info.GivenName)
	s.Equal("Doe", info.Surname)
	s.Equal([]string{"CN=Oncology,OU=Groups,DC=example,DC=org"}, info.Groups)
}

func (s *ClientSuite) TestSimpleDomainBindUsesDownLevelName() {
	s.cfg.DomainBind = directory.MechanismSimple
	c := s.conn()
	c.EXPECT().Bind(`EXAMPLE\jdoe`, "pw").Return(nil)
	c.EXPECT().Search(gomock.Any()).Return(&ldap.SearchResult{Entries: []*ldap.Entry{jdoeEntry()}}, nil)

	_, err := s.client().Authenticate(context.Background(), "jdoe", "pw")
	s.Require().NoError(err)
}

func (s *ClientSuite) TestDomainBindHarvestFailureStillAuthenticates() {
	c := s.conn()
	c.EXPECT().NTLMBind("EXAMPLE", "jdoe", "pw").Return(nil)
	c.EXPECT().Search(gomock.Any()).Return(nil, ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("no read")))

	info, err := s.client().Authenticate(context.Background(), "jdoe", "pw")
	s.Require().NoError(err)
	s.Equal("jdoe", info.Username)
	s.Equal("jdoe", info.DisplayName)
	s.Empty(info.Email)
}

func (s *ClientSuite) TestFallsBackToSearchBind() {
	first := s.conn()
	first.EXPECT().NTLMBind("EXAMPLE", "jdoe", "pw").Return(invalidCredentials())

	second := s.conn()
	gomock.InOrder(
		second.EXPECT().Bind("CN=svc,DC=example,DC=org", "svc-secret").Return(nil),
		second.EXPECT().Search(gomock.Any()).DoAndReturn(func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			s.Equal("OU=Users,DC=example,DC=org", req.BaseDN)
			s.Equal("(sAMAccountName=jdoe)", req.Filter)
			return &ldap.SearchResult{Entries: []*ldap.Entry{jdoeEntry()}}, nil
		}),
		second.EXPECT().Bind("CN=John Doe,OU=Users,DC=example,DC=org", "pw").Return(nil),
	)

	info, err := s.client().Authenticate(context.Background(), "jdoe", "pw")
	s.Require().NoError(err)
	s.Equal("John Doe", info.DisplayName)
}

func (s *ClientSuite) TestAllStrategiesRejected() {
	first := s.conn()
	first.EXPECT().NTLMBind(gomock.Any(), gomock.Any(), gomock.Any()).Return(invalidCredentials())
	second := s.conn()
	second.EXPECT().Bind("CN=svc,DC=example,DC=org", "svc-secret").Return(nil)
	second.EXPECT().Search(gomock.Any()).Return(&ldap.SearchResult{Entries: []*ldap.Entry{jdoeEntry()}}, nil)
	second.EXPECT().Bind("CN=John Doe,OU=Users,DC=example,DC=org", "wrong").Return(invalidCredentials())

	_, err := s.client().Authenticate(context.Background(), "jdoe", "wrong")
	s.Require().ErrorIs(err, directory.ErrRejected)
	s.NotErrorIs(err, directory.ErrUnavailable)
}

func (s *ClientSuite) TestUnknownUserIsRejected() {
	s.cfg.Domain = ""
	c := s.conn()
	c.EXPECT().Bind("CN=svc,DC=example,DC=org", "svc-secret").Return(nil)
	c.EXPECT().Search(gomock.Any()).Return(&ldap.SearchResult{}, nil)

	_, err := s.client().Authenticate(context.Background(), "ghost", "pw")
	s.Require().ErrorIs(err, directory.ErrRejected)
}

func (s *ClientSuite) TestUnreachableDirectoryIsUnavailable() {
	s.dialer.EXPECT().Dial(gomock.Any()).Return(nil, directory.ErrUnavailable).Times(2)

	_, err := s.client().Authenticate(context.Background(), "jdoe", "pw")
	s.Require().ErrorIs(err, directory.ErrUnavailable)
	s.NotErrorIs(err, directory.ErrRejected)
}

func (s *ClientSuite) TestNetworkFailureDuringBindIsUnavailable() {
	s.cfg.Domain = ""
	c := s.conn()
	c.EXPECT().Bind("CN=svc,DC=example,DC=org", "svc-secret").Return(networkError())

	_, err := s.client().Authenticate(context.Background(), "jdoe", "pw")
	s.Require().ErrorIs(err, directory.ErrUnavailable)
}

func (s *ClientSuite) TestMixedFailuresReportRejection() {
	s.dialer.EXPECT().Dial(gomock.Any()).Return(nil, directory.ErrUnavailable)
	second := s.conn()
	second.EXPECT().Bind("CN=svc,DC=example,DC=org", "svc-secret").Return(nil)
	second.EXPECT().Search(gomock.Any()).Return(&ldap.SearchResult{}, nil)

	_, err := s.client().Authenticate(context.Background(), "jdoe", "pw")
	s.Require().ErrorIs(err, directory.ErrRejected)
}

func (s *ClientSuite) TestRejectedServiceAccountIsUnavailable() {
	s.cfg.Domain = ""
	c := s.conn()
	c.EXPECT().Bind("CN=svc,DC=example,DC=org", "svc-secret").Return(invalidCredentials())

	_, err := s.client().Authenticate(context.Background(), "jdoe", "pw")
	s.Require().ErrorIs(err, directory.ErrUnavailable)
}

func (s *ClientSuite) TestFilterIsEscaped() {
	s.cfg.Domain = ""
	s.cfg.BindUser = ""
	c := s.conn()
	c.EXPECT().Search(gomock.Any()).DoAndReturn(func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
		s.Equal(`(sAMAccountName=\2a\29\28uid=\2a)`, req.Filter)
		return &ldap.SearchResult{}, nil
	})

	_, err := s.client().Authenticate(context.Background(), "*)(uid=*", "pw")
	s.Require().ErrorIs(err, directory.ErrRejected)
}

func (s *ClientSuite) TestCustomStrategyOrder() {
	c := s.conn()
	c.EXPECT().Bind("CN=svc,DC=example,DC=org", "svc-secret").Return(nil)
	c.EXPECT().Search(gomock.Any()).Return(&ldap.SearchResult{Entries: []*ldap.Entry{jdoeEntry()}}, nil)
	c.EXPECT().Bind("CN=John Doe,OU=Users,DC=example,DC=org", "pw").Return(nil)

	client := directory.NewClient(s.cfg, s.dialer,
		directory.WithLogger(s.logger),
		directory.WithStrategies(directory.NewSearchBind(s.cfg, s.logger)))
	_, err := client.Authenticate(context.Background(), "jdoe", "pw")
	s.Require().NoError(err)
}

func (s *ClientSuite) TestGroups() {
	s.Run("returns memberOf", func() {
		c := s.conn()
		c.EXPECT().Bind("CN=svc,DC=example,DC=org", "svc-secret").Return(nil)
		c.EXPECT().Search(gomock.Any()).DoAndReturn(func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			s.Equal([]string{"memberOf"}, req.Attributes)
			return &ldap.SearchResult{Entries: []*ldap.Entry{jdoeEntry()}}, nil
		})

		groups, err := s.client().Groups(context.Background(), "jdoe")
		s.Require().NoError(err)
		s.Equal([]string{"CN=Oncology,OU=Groups,DC=example,DC=org"}, groups)
	})

	s.Run("unknown user has none", func() {
		c := s.conn()
		c.EXPECT().Bind(gomock.Any(), gomock.Any()).Return(nil)
		c.EXPECT().Search(gomock.Any()).Return(&ldap.SearchResult{}, nil)

		groups, err := s.client().Groups(context.Background(), "ghost")
		s.Require().NoError(err)
		s.Empty(groups)
	})
}

func (s *ClientSuite) TestTestConnection() {
	s.Run("service account bind", func() {
		c := s.conn()
		c.EXPECT().Bind("CN=svc,DC=example,DC=org", "svc-secret").Return(nil)
		s.Require().NoError(s.client().TestConnection(context.Background()))
	})

	s.Run("anonymous root dse read", func() {
		s.cfg.BindUser = ""
		c := s.conn()
		c.EXPECT().Search(gomock.Any()).DoAndReturn(func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			s.Equal("", req.BaseDN)
			s.Equal(ldap.ScopeBaseObject, req.Scope)
			return &ldap.SearchResult{}, nil
		})
		s.Require().NoError(s.client().TestConnection(context.Background()))
	})

	s.Run("unreachable", func() {
		s.dialer.EXPECT().Dial(gomock.Any()).Return(nil, directory.ErrUnavailable)
		s.Require().ErrorIs(s.client().TestConnection(context.Background()), directory.ErrUnavailable)
	})
}

func TestConfig(t *testing.T) {
	cfg := directory.Config{Server: "dc.example.org", BaseDN: "DC=example,DC=org"}
	cfg.ApplyDefaults()
	assert.Equal(t, 389, cfg.Port)
	assert.Equal(t, directory.MechanismNTLM, cfg.DomainBind)
	assert.Equal(t, "(sAMAccountName={username})", cfg.UserSearchFilter)
	assert.Equal(t, "DC=example,DC=org", cfg.UserSearchBase)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "ldap://dc.example.org:389", cfg.URL())
	assert.NoError(t, cfg.Validate())

	tlsCfg := directory.Config{Server: "dc.example.org", UseTLS: true}
	tlsCfg.ApplyDefaults()
	assert.Equal(t, "ldaps://dc.example.org:636", tlsCfg.URL())
	assert.Equal(t, "dc.example.org", tlsCfg.Host())

	withScheme := directory.Config{Server: "ldap://dc.example.org", Port: 3268}
	assert.Equal(t, "ldap://dc.example.org:3268", withScheme.URL())

	withPort := directory.Config{Server: "ldaps://dc.example.org:10636", Port: 389}
	assert.Equal(t, "ldaps://dc.example.org:10636", withPort.URL())

	bad := cfg
	bad.UserSearchFilter = "(uid=*)"
	assert.Error(t, bad.Validate())

	missing := directory.Config{}
	missing.ApplyDefaults()
	assert.Error(t, missing.Validate())
}
