package models

import (
	"sort"
	"strings"
)

// Realm identifies one of the three independent principal categories.
type Realm string

const (
	RealmAdmin    Realm = "admin"
	RealmStaff    Realm = "staff"
	RealmCustomer Realm = "customer"
)

// IsValid reports whether r is a known realm.
func (r Realm) IsValid() bool {
	switch r {
	case RealmAdmin, RealmStaff, RealmCustomer:
		return true
	}
	return false
}

// Scoped reports whether accounts of the realm belong to a single company.
func (r Realm) Scoped() bool {
	return r == RealmStaff || r == RealmCustomer
}

// MemberRole is the primary role column of a CompanyMember.
type MemberRole string

const (
	MemberRoleAdmin   MemberRole = "admin"
	MemberRoleManager MemberRole = "manager"
	MemberRoleStaff   MemberRole = "staff"
	MemberRoleDriver  MemberRole = "driver"
	MemberRoleViewer  MemberRole = "viewer"
)

// Catalog role names that are not member roles.
const (
	RoleOwner    = "owner"
	RoleCustomer = "customer"
)

var memberRoleRank = map[MemberRole]int{
	MemberRoleViewer:  0,
	MemberRoleDriver:  1,
	MemberRoleStaff:   1,
	MemberRoleManager: 2,
	MemberRoleAdmin:   3,
}

// ParseMemberRole normalizes raw input into a MemberRole.
func ParseMemberRole(raw string) (MemberRole, bool) {
	role := MemberRole(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := memberRoleRank[role]
	return role, ok
}

// IsValidMemberRole reports whether role is part of the member enum.
func IsValidMemberRole(role MemberRole) bool {
	_, ok := memberRoleRank[role]
	return ok
}

// HasAtLeast reports whether role ranks at or above required.
func (role MemberRole) HasAtLeast(required MemberRole) bool {
	have, ok := memberRoleRank[role]
	if !ok {
		return false
	}
	return have >= memberRoleRank[required]
}

// NormalizeRoleNames lowercases, trims, dedupes and sorts role names.
func NormalizeRoleNames(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
