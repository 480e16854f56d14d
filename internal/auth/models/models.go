package models

import (
	"strings"
	"time"

	id "oncocentre/pkg/domain"
	dErrors "oncocentre/pkg/domain-errors"
)

// MaxUsernameLength bounds usernames in storage and input validation.
const MaxUsernameLength = 80

// AuthSource records which IdentitySource owns an identity's credential.
type AuthSource string

const (
	AuthSourceLocal     AuthSource = "local"
	AuthSourceDirectory AuthSource = "directory"
)

// Method is the authentication method a caller asks for.
type Method string

const (
	MethodLocal     Method = "local"
	MethodDirectory Method = "directory"
	MethodAuto      Method = "auto"
)

// ParseMethod accepts the method names case-insensitively; "ldap" is kept as
// an alias of directory. An empty string means auto.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return MethodAuto, nil
	case "local":
		return MethodLocal, nil
	case "directory", "ldap":
		return MethodDirectory, nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown authentication method: "+s)
	}
}

// Role is the single authorization role derived from an identity's flags.
type Role int

const (
	RoleMember Role = iota
	RolePrincipalInvestigator
	RoleAdministrator
)

func (r Role) String() string {
	switch r {
	case RoleAdministrator:
		return "administrator"
	case RolePrincipalInvestigator:
		return "principal_investigator"
	default:
		return "member"
	}
}

// DirectoryInfo is the attribute set harvested from the directory on a
// successful bind. It is never persisted as is; Identity keeps a subset.
type DirectoryInfo struct {
	Username          string
	DistinguishedName string
	DisplayName       string
	Email             string
	GivenName         string
	Surname           string
	Groups            []string
}

// Identity is an authenticated principal. A single record covers both local
// and directory identities; AuthSource says which one owns the credential.
type Identity struct {
	ID                      id.IdentityID `gorm:"primaryKey;size:36"`
	Username                string        `gorm:"uniqueIndex;size:80;not null"`
	PasswordHash            string        `gorm:"size:128"`
	Active                  bool          `gorm:"not null"`
	IsAdministrator         bool          `gorm:"not null"`
	IsPrincipalInvestigator bool          `gorm:"not null"`
	AuthSource              AuthSource    `gorm:"size:16;not null;index"`

	DistinguishedName string `gorm:"size:512"`
	Email             string `gorm:"size:255"`
	DisplayName       string `gorm:"size:255"`
	GivenName         string `gorm:"size:128"`
	Surname           string `gorm:"size:128"`
	LastSyncAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Identity) TableName() string { return "identities" }

// NewLocalIdentity builds an active local identity, enforcing invariants.
func NewLocalIdentity(identityID id.IdentityID, username, passwordHash string, isAdmin, isPI bool, now time.Time) (*Identity, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "local identity requires a password hash")
	}
	return &Identity{
		ID:                      identityID,
		Username:                username,
		PasswordHash:            passwordHash,
		Active:                  true,
		IsAdministrator:         isAdmin,
		IsPrincipalInvestigator: isPI,
		AuthSource:              AuthSourceLocal,
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}

// NewDirectoryIdentity builds an active, unprivileged directory identity from
// harvested attributes. It never carries a password hash.
func NewDirectoryIdentity(identityID id.IdentityID, info DirectoryInfo, now time.Time) (*Identity, error) {
	if err := ValidateUsername(info.Username); err != nil {
		return nil, err
	}
	i := &Identity{
		ID:         identityID,
		Username:   info.Username,
		Active:     true,
		AuthSource: AuthSourceDirectory,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	i.ApplyDirectoryInfo(info, now)
	return i, nil
}

func ValidateUsername(username string) error {
	if username == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "username must be 80 characters or less")
	}
	if strings.TrimSpace(username) != username {
		return dErrors.New(dErrors.CodeInvariantViolation, "username cannot have surrounding whitespace")
	}
	return nil
}

// Role returns the identity's role. Administrator wins over principal
// investigator when both flags are set.
func (i *Identity) Role() Role {
	switch {
	case i.IsAdministrator:
		return RoleAdministrator
	case i.IsPrincipalInvestigator:
		return RolePrincipalInvestigator
	default:
		return RoleMember
	}
}

// CanVerifyLocally reports whether the local store may check a password for
// this identity. Directory identities never can.
func (i *Identity) CanVerifyLocally() bool {
	return i.AuthSource == AuthSourceLocal && i.PasswordHash != ""
}

// IsDirectory reports whether the directory owns this identity's credential.
func (i *Identity) IsDirectory() bool {
	return i.AuthSource == AuthSourceDirectory
}

// PromoteToDirectory hands the credential to the directory. The transition is
// one-way: there is no operation back to local.
func (i *Identity) PromoteToDirectory(info DirectoryInfo, now time.Time) {
	i.AuthSource = AuthSourceDirectory
	i.PasswordHash = ""
	i.ApplyDirectoryInfo(info, now)
}

// ApplyDirectoryInfo refreshes cached directory attributes. Empty harvested
// values keep what was cached so a degraded harvest does not erase data.
func (i *Identity) ApplyDirectoryInfo(info DirectoryInfo, now time.Time) {
	if info.DistinguishedName != "" {
		i.DistinguishedName = info.DistinguishedName
	}
	if info.Email != "" {
		i.Email = info.Email
	}
	if info.DisplayName != "" {
		i.DisplayName = info.DisplayName
	}
	if info.GivenName != "" {
		i.GivenName = info.GivenName
	}
	if info.Surname != "" {
		i.Surname = info.Surname
	}
	synced := now
	i.LastSyncAt = &synced
	i.UpdatedAt = now
}

// FullName prefers given name and surname, then display name, then username.
func (i *Identity) FullName() string {
	if full := strings.TrimSpace(i.GivenName + " " + i.Surname); full != "" {
		return full
	}
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}

// OperatorUsername names the console operator in audit trails.
const OperatorUsername = "operator"

// Operator returns the unpersisted administrator identity used by the
// command-line tool. Its nil ID never matches a stored identity.
func Operator() *Identity {
	return &Identity{Username: OperatorUsername, Active: true, IsAdministrator: true, AuthSource: AuthSourceLocal}
}

// Stats summarises the identity population for the administration dashboard.
type Stats struct {
	Total                  int
	Active                 int
	Administrators         int
	PrincipalInvestigators int
	Directory              int
}
