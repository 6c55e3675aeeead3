package models

// Principal is an authenticated caller in one realm.
// CompanyID is empty for admin principals.
type Principal struct {
	Realm     Realm
	AccountID string
	CompanyID string
	Email     string
	Roles     []string
	// Overrides holds per-member permission grants (true) and revocations (false).
	Overrides map[string]bool
}

// IsAdmin reports whether the principal belongs to the platform realm.
func (p Principal) IsAdmin() bool {
	return p.Realm == RealmAdmin
}
