package identity

import (
	"fmt"

	"github.com/stanstork/opsdesk-api/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	MaxPasswordLength = 72
)

// Hasher hashes and verifies secrets with bcrypt.
type Hasher struct {
	cost  int
	dummy []byte
}

func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummy: dummy}, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash.
func (h *Hasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Burn spends the same work as a real comparison so that missing accounts
// are not distinguishable by response time.
func (h *Hasher) Burn(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

// ValidatePassword enforces the password policy for new secrets.
func ValidatePassword(password, confirmation string) error {
	fields := map[string]string{}
	switch {
	case len(password) < MinPasswordLength:
		fields["password"] = fmt.Sprintf("must be at least %d characters", MinPasswordLength)
	case len(password) > MaxPasswordLength:
		fields["password"] = fmt.Sprintf("must be at most %d bytes", MaxPasswordLength)
	}
	if password != confirmation {
		fields["password_confirmation"] = "does not match password"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid password", fields)
	}
	return nil
}
