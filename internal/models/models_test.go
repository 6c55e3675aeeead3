package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInvitationExpiryBoundary(t *testing.T) {
	expires := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	inv := Invitation{ExpiresAt: expires}

	assert.False(t, inv.IsExpired(expires.Add(-time.Second)))
	assert.True(t, inv.IsExpired(expires))
	assert.True(t, inv.IsExpired(expires.Add(time.Hour)))
}

func TestInvitationStatus(t *testing.T) {
	now := time.Now()
	accepted := now.Add(-time.Hour)

	assert.Equal(t, "issued", Invitation{ExpiresAt: now.Add(time.Hour)}.Status(now))
	assert.Equal(t, "expired", Invitation{ExpiresAt: now.Add(-time.Hour)}.Status(now))
	assert.Equal(t, "accepted", Invitation{ExpiresAt: now.Add(-time.Hour), AcceptedAt: &accepted}.Status(now))
}

func TestInvitationKindRealm(t *testing.T) {
	assert.Equal(t, RealmCustomer, InvitationCustomer.Realm())
	assert.Equal(t, RealmStaff, InvitationStaff.Realm())
	assert.Equal(t, RealmAdmin, InvitationTeam.Realm())
	assert.False(t, InvitationKind("vendor").IsValid())
}

func TestParseMemberRole(t *testing.T) {
	role, ok := ParseMemberRole("  Manager ")
	assert.True(t, ok)
	assert.Equal(t, MemberRoleManager, role)

	_, ok = ParseMemberRole("owner")
	assert.False(t, ok)

	assert.True(t, MemberRoleAdmin.HasAtLeast(MemberRoleManager))
	assert.False(t, MemberRoleViewer.HasAtLeast(MemberRoleStaff))
}

func TestNormalizeRoleNames(t *testing.T) {
	assert.Equal(t, []string{"admin", "viewer"}, NormalizeRoleNames([]string{"Viewer", " admin", "viewer", ""}))
}

func TestSlugAndEmail(t *testing.T) {
	assert.Equal(t, "acme", NormalizeSlug(" ACME "))
	assert.True(t, IsValidSlug("acme-waste"))
	assert.False(t, IsValidSlug("-acme"))
	assert.False(t, IsValidSlug("acme_waste"))
	assert.Equal(t, "ops@acme.io", NormalizeEmail(" Ops@Acme.io "))
}

func TestCustomerCanSignIn(t *testing.T) {
	hash := "$2a$10$abc"
	empty := ""

	assert.False(t, CustomerAccount{PortalAccess: true}.CanSignIn())
	assert.False(t, CustomerAccount{PortalAccess: true, PasswordHash: &empty}.CanSignIn())
	assert.False(t, CustomerAccount{PortalAccess: false, PasswordHash: &hash}.CanSignIn())
	assert.True(t, CustomerAccount{PortalAccess: true, PasswordHash: &hash}.CanSignIn())
}

func TestInvitationKindPathPrefix(t *testing.T) {
	assert.Equal(t, "/customer-portal/acme", InvitationCustomer.PathPrefix("acme"))
	assert.Equal(t, "/company/acme", InvitationStaff.PathPrefix("acme"))
	assert.Equal(t, "/admin/acme", InvitationTeam.PathPrefix("acme"))
	assert.Empty(t, InvitationKind("bogus").PathPrefix("acme"))
}
