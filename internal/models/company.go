package models

import (
	"regexp"
	"strings"
	"time"
)

// Company is the tenant root. Every scoped record carries its ID.
type Company struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,62}[a-z0-9])?$`)

// NormalizeSlug lowercases and trims a routable company identifier.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// IsValidSlug reports whether slug can be used in a route.
func IsValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// NormalizeEmail is applied to every identifier before lookup or insert.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
