package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Username identifies a user of the judging platform. It is the partition
// key of every stats record.
type Username string

// Platform handles: letters, digits, underscore, hyphen and dot.
var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

var (
	// ErrInvalidUsername is returned for handles the platform would not issue.
	ErrInvalidUsername = NewDomainError("shared", "NewUsername", ErrInvalidInput, "invalid username")
	ErrEmptyUsername   = NewDomainError("shared", "NewUsername", ErrEmptyValue, "username is empty")
)

// IsValid checks if the username is well formed.
func (u Username) IsValid() bool {
	return usernameRegex.MatchString(string(u))
}

// String returns the string representation.
func (u Username) String() string {
	return string(u)
}

// NewUsername trims and validates a username. Case is preserved because the
// fact source stores handles exactly as the platform reports them.
func NewUsername(raw string) (Username, error) {
	u := Username(strings.TrimSpace(raw))
	if u == "" {
		return "", ErrEmptyUsername
	}
	if !u.IsValid() {
		return "", ErrInvalidUsername
	}
	return u, nil
}
