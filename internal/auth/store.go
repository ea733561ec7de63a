package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const RoleUploader = "uploader"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBadUserEntry       = errors.New(`user entry must be "name:password"`)
)

type User struct {
	Name string
	Hash []byte
	Role string
}

type UserStore interface {
	Verify(ctx context.Context, name, password string) (User, error)
	Ping(ctx context.Context) error
}

// Account is one configured uploader before hashing.
type Account struct {
	Name     string
	Password string
}

// ParseAccounts reads "name:password" entries. The password may itself
// contain colons.
func ParseAccounts(entries []string) ([]Account, error) {
	out := make([]Account, 0, len(entries))
	for _, e := range entries {
		name, pass, ok := strings.Cut(strings.TrimSpace(e), ":")
		name = normalizeName(name)
		if !ok || name == "" || pass == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadUserEntry, maskEntry(e))
		}
		out = append(out, Account{Name: name, Password: pass})
	}
	return out, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func maskEntry(e string) string {
	name, _, _ := strings.Cut(e, ":")
	return name + ":***"
}
