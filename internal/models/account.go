package models

import "time"

// AdminAccount is a platform-level principal. It is not tenant scoped and
// reaches companies only through AdminMembership rows.
type AdminAccount struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AdminMembership grants an admin access to one company under a role label.
type AdminMembership struct {
	AdminID   string    `json:"admin_id"`
	CompanyID string    `json:"company_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CompanyMember is a staff principal scoped to exactly one company.
type CompanyMember struct {
	ID                  string          `json:"id"`
	CompanyID           string          `json:"company_id"`
	Email               string          `json:"email"`
	Name                string          `json:"name"`
	PasswordHash        string          `json:"-"`
	Role                MemberRole      `json:"role"`
	IsActive            bool            `json:"is_active"`
	PermissionOverrides map[string]bool `json:"permission_overrides,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// CustomerAccount is an end-customer principal scoped to exactly one company.
// PasswordHash stays nil until the account is activated through an invitation.
type CustomerAccount struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash *string    `json:"-"`
	PortalAccess bool       `json:"portal_access"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CanSignIn reports whether the customer may authenticate to the portal.
func (c CustomerAccount) CanSignIn() bool {
	return c.PortalAccess && c.PasswordHash != nil && *c.PasswordHash != ""
}
