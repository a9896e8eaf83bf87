package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/branchd-dev/queuemon/internal/config"
)

// ErrInvalidCredentials is returned for a malformed FLOWER_AUTH value.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid dashboard credentials", config.ErrConfiguration)

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// Account is one dashboard login. The secret is either a plain password or a
// bcrypt hash.
type Account struct {
	Username string
	secret   string
	hashed   bool
}

// Accounts is the set of logins allowed to view the dashboard.
type Accounts []Account

// ParseCredentials parses "user:pass[,user2:pass2...]". An empty string yields
// no accounts, which disables authentication.
func ParseCredentials(raw string) (Accounts, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var accounts Accounts
	seen := make(map[string]bool)
	for i, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		username, secret, ok := strings.Cut(entry, ":")
		if !ok || username == "" || secret == "" {
			// Never echo the entry, it may hold a password
			return nil, fmt.Errorf("%w: entry %d must be user:password", ErrInvalidCredentials, i+1)
		}
		// Verify stops at the first matching username
		if seen[username] {
			return nil, fmt.Errorf("%w: entry %d repeats username %q", ErrInvalidCredentials, i+1, username)
		}
		seen[username] = true
		accounts = append(accounts, Account{
			Username: username,
			secret:   secret,
			hashed:   isBcryptHash(secret),
		})
	}

	return accounts, nil
}

// Enabled reports whether any account is configured.
func (a Accounts) Enabled() bool {
	return len(a) > 0
}

// Verify reports whether username/password match one of the accounts.
func (a Accounts) Verify(username, password string) bool {
	for _, acc := range a {
		if subtle.ConstantTimeCompare([]byte(acc.Username), []byte(username)) != 1 {
			continue
		}
		if acc.hashed {
			return VerifyPassword(password, acc.secret) == nil
		}
		return subtle.ConstantTimeCompare([]byte(acc.secret), []byte(password)) == 1
	}
	return false
}

// HashPassword returns a bcrypt hash suitable for FLOWER_AUTH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks password against a bcrypt hash.
func VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func isBcryptHash(s string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
