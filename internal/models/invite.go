package models

import "time"

// InvitationKind selects which realm account an invitation creates.
type InvitationKind string

const (
	InvitationCustomer InvitationKind = "customer"
	InvitationStaff    InvitationKind = "staff"
	InvitationTeam     InvitationKind = "team"
)

// Realm returns the realm whose account an accepted invitation creates.
func (k InvitationKind) Realm() Realm {
	switch k {
	case InvitationCustomer:
		return RealmCustomer
	case InvitationStaff:
		return RealmStaff
	case InvitationTeam:
		return RealmAdmin
	}
	return ""
}

// IsValid reports whether k is a known invitation kind.
func (k InvitationKind) IsValid() bool {
	return k.Realm() != ""
}

// Invitation is a single-use, time-boxed grant to join a company.
// Only the hash of the token is stored.
type Invitation struct {
	ID             string         `json:"id"`
	Kind           InvitationKind `json:"kind"`
	CompanyID      string         `json:"company_id"`
	Email          string         `json:"email"`
	Role           string         `json:"role"`
	TokenHash      string         `json:"-"`
	InvitedByRealm Realm          `json:"invited_by_realm"`
	InvitedBy      string         `json:"invited_by"`
	Template       *string        `json:"template,omitempty"`
	ExpiresAt      time.Time      `json:"expires_at"`
	AcceptedAt     *time.Time     `json:"accepted_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IsExpired determines whether the invitation is past its window.
// An invitation is usable only while now is strictly before ExpiresAt.
func (i Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// IsUsed indicates whether the invitation has already been accepted.
func (i Invitation) IsUsed() bool {
	return i.AcceptedAt != nil
}

// Status is the derived state shown in listings.
func (i Invitation) Status(now time.Time) string {
	switch {
	case i.IsUsed():
		return "accepted"
	case i.IsExpired(now):
		return "expired"
	default:
		return "issued"
	}
}

// PathPrefix is the route prefix under which invitations of kind k are
// accepted for the company with the given slug.
func (k InvitationKind) PathPrefix(slug string) string {
	switch k {
	case InvitationCustomer:
		return "/customer-portal/" + slug
	case InvitationStaff:
		return "/company/" + slug
	case InvitationTeam:
		return "/admin/" + slug
	}
	return ""
}
