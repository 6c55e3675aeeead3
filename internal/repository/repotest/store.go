// Package repotest provides an in-memory implementation of the repository
// interfaces for service and handler tests. Transactions are serialized and
// roll back on error, which mirrors the row locking the SQL store relies on.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
)

type principalRole struct {
	realm       models.Realm
	principalID string
	roleID      string
}

type state struct {
	companies   map[string]models.Company
	admins      map[string]models.AdminAccount
	memberships map[string]models.AdminMembership
	members     map[string]models.CompanyMember
	customers   map[string]models.CustomerAccount
	invites     map[string]models.Invitation
	permissions map[string]struct{}
	roles       map[string]string
	rolePerms   map[string]map[string]struct{}
	links       map[principalRole]struct{}
}

func newState() *state {
	return &state{
		companies:   map[string]models.Company{},
		admins:      map[string]models.AdminAccount{},
		memberships: map[string]models.AdminMembership{},
		members:     map[string]models.CompanyMember{},
		customers:   map[string]models.CustomerAccount{},
		invites:     map[string]models.Invitation{},
		permissions: map[string]struct{}{},
		roles:       map[string]string{},
		rolePerms:   map[string]map[string]struct{}{},
		links:       map[principalRole]struct{}{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.companies {
		c.companies[k] = v
	}
	for k, v := range s.admins {
		c.admins[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.invites {
		c.invites[k] = v
	}
	for k := range s.permissions {
		c.permissions[k] = struct{}{}
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, perms := range s.rolePerms {
		set := make(map[string]struct{}, len(perms))
		for p := range perms {
			set[p] = struct{}{}
		}
		c.rolePerms[k] = set
	}
	for k := range s.links {
		c.links[k] = struct{}{}
	}
	return c
}

// Store is an in-memory repository.Store replacement.
type Store struct {
	repository.Repositories

	txMu sync.Mutex
	mu   sync.Mutex
	st   *state

	// Now stamps created_at/updated_at columns.
	Now func() time.Time
}

func NewStore() *Store {
	s := &Store{st: newState(), Now: time.Now}
	s.Repositories = repository.Repositories{
		Companies:   &companies{s},
		Admins:      &admins{s},
		Members:     &members{s},
		Customers:   &customers{s},
		Invitations: &invites{s},
		Roles:       &roles{s},
	}
	return s
}

// WithTx runs fn with exclusive access and restores the previous state when
// fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.st.clone()
	s.mu.Unlock()

	if err := fn(s.Repositories); err != nil {
		s.mu.Lock()
		s.st = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.Now().UTC()
}

// Counts reports row counts per table, for assertions.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"companies":   len(s.st.companies),
		"admins":      len(s.st.admins),
		"memberships": len(s.st.memberships),
		"members":     len(s.st.members),
		"customers":   len(s.st.customers),
		"invitations": len(s.st.invites),
		"roles":       len(s.st.roles),
	}
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type companies struct{ s *Store }

func (r *companies) CreateCompany(_ context.Context, slug, name string) (models.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.st.companies {
		if c.Slug == slug {
			return models.Company{}, repository.ErrDuplicate
		}
	}
	now := r.s.now()
	c := models.Company{ID: uuid.NewString(), Slug: slug, Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now}
	r.s.st.companies[c.ID] = c
	return c, nil
}

func (r *companies) GetCompanyByID(_ context.Context, id string) (models.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.st.companies[id]; ok {
		return c, nil
	}
	return models.Company{}, repository.ErrNotFound
}

func (r *companies) GetActiveCompanyBySlug(ctx context.Context, slug string) (models.Company, error) {
	c, err := r.GetCompanyBySlug(ctx, slug)
	if err != nil {
		return models.Company{}, err
	}
	if !c.IsActive {
		return models.Company{}, repository.ErrNotFound
	}
	return c, nil
}

func (r *companies) GetCompanyBySlug(_ context.Context, slug string) (models.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.st.companies {
		if c.Slug == slug {
			return c, nil
		}
	}
	return models.Company{}, repository.ErrNotFound
}

func (r *companies) ListCompanies(_ context.Context) ([]models.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Company, 0, len(r.s.st.companies))
	for _, c := range r.s.st.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *companies) SetCompanyActive(_ context.Context, id string, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.companies[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.IsActive = active
	c.UpdatedAt = r.s.now()
	r.s.st.companies[id] = c
	return nil
}

// DeleteCompany cascades to every company scoped row.
func (r *companies) DeleteCompany(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.companies[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.companies, id)
	for k, m := range r.s.st.memberships {
		if m.CompanyID == id {
			delete(r.s.st.memberships, k)
		}
	}
	for k, m := range r.s.st.members {
		if m.CompanyID == id {
			delete(r.s.st.members, k)
		}
	}
	for k, c := range r.s.st.customers {
		if c.CompanyID == id {
			delete(r.s.st.customers, k)
		}
	}
	for k, inv := range r.s.st.invites {
		if inv.CompanyID == id {
			delete(r.s.st.invites, k)
		}
	}
	return nil
}

type admins struct{ s *Store }

func (r *admins) CreateAdmin(_ context.Context, email, name, passwordHash string) (models.AdminAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.st.admins {
		if sameEmail(a.Email, email) {
			return models.AdminAccount{}, repository.ErrDuplicate
		}
	}
	now := r.s.now()
	a := models.AdminAccount{ID: uuid.NewString(), Email: email, Name: name, PasswordHash: passwordHash, IsActive: true, CreatedAt: now, UpdatedAt: now}
	r.s.st.admins[a.ID] = a
	return a, nil
}

func (r *admins) GetAdminByEmail(_ context.Context, email string) (models.AdminAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.st.admins {
		if sameEmail(a.Email, email) {
			return a, nil
		}
	}
	return models.AdminAccount{}, repository.ErrNotFound
}

func (r *admins) GetAdminByID(_ context.Context, id string) (models.AdminAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.st.admins[id]; ok {
		return a, nil
	}
	return models.AdminAccount{}, repository.ErrNotFound
}

func (r *admins) UpsertMembership(_ context.Context, adminID, companyID, role string) (models.AdminMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.admins[adminID]; !ok {
		return models.AdminMembership{}, repository.ErrNotFound
	}
	if _, ok := r.s.st.companies[companyID]; !ok {
		return models.AdminMembership{}, repository.ErrNotFound
	}
	key := adminID + "/" + companyID
	m, ok := r.s.st.memberships[key]
	if !ok {
		m = models.AdminMembership{AdminID: adminID, CompanyID: companyID, CreatedAt: r.s.now()}
	}
	m.Role = role
	r.s.st.memberships[key] = m
	return m, nil
}

func (r *admins) GetMembership(_ context.Context, adminID, companyID string) (models.AdminMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.st.memberships[adminID+"/"+companyID]; ok {
		return m, nil
	}
	return models.AdminMembership{}, repository.ErrNotFound
}

func (r *admins) ListMemberships(_ context.Context, adminID string) ([]models.AdminMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AdminMembership
	for _, m := range r.s.st.memberships {
		if m.AdminID == adminID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, nil
}

type members struct{ s *Store }

func (r *members) CreateMember(_ context.Context, member models.CompanyMember) (models.CompanyMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.companies[member.CompanyID]; !ok {
		return models.CompanyMember{}, repository.ErrNotFound
	}
	for _, m := range r.s.st.members {
		if m.CompanyID == member.CompanyID && sameEmail(m.Email, member.Email) {
			return models.CompanyMember{}, repository.ErrDuplicate
		}
	}
	now := r.s.now()
	member.ID = uuid.NewString()
	member.CreatedAt, member.UpdatedAt = now, now
	r.s.st.members[member.ID] = member
	return member, nil
}

func (r *members) GetMemberByEmail(_ context.Context, companyID, email string) (models.CompanyMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.st.members {
		if m.CompanyID == companyID && sameEmail(m.Email, email) {
			return m, nil
		}
	}
	return models.CompanyMember{}, repository.ErrNotFound
}

func (r *members) GetMemberByID(_ context.Context, id string) (models.CompanyMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.st.members[id]; ok {
		return m, nil
	}
	return models.CompanyMember{}, repository.ErrNotFound
}

func (r *members) ListMembersByCompany(_ context.Context, companyID string) ([]models.CompanyMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.CompanyMember
	for _, m := range r.s.st.members {
		if m.CompanyID == companyID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *members) ActivateMember(_ context.Context, id string, role models.MemberRole, passwordHash string) (models.CompanyMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.st.members[id]
	if !ok {
		return models.CompanyMember{}, repository.ErrNotFound
	}
	m.IsActive = true
	m.Role = role
	m.PasswordHash = passwordHash
	m.UpdatedAt = r.s.now()
	r.s.st.members[id] = m
	return m, nil
}

func (r *members) DeactivateMember(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.st.members[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsActive = false
	m.UpdatedAt = r.s.now()
	r.s.st.members[id] = m
	return nil
}

type customers struct{ s *Store }

func (r *customers) CreateCustomer(_ context.Context, customer models.CustomerAccount) (models.CustomerAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.companies[customer.CompanyID]; !ok {
		return models.CustomerAccount{}, repository.ErrNotFound
	}
	for _, c := range r.s.st.customers {
		if c.CompanyID == customer.CompanyID && sameEmail(c.Email, customer.Email) {
			return models.CustomerAccount{}, repository.ErrDuplicate
		}
	}
	now := r.s.now()
	customer.ID = uuid.NewString()
	customer.CreatedAt, customer.UpdatedAt = now, now
	r.s.st.customers[customer.ID] = customer
	return customer, nil
}

func (r *customers) GetCustomerByEmail(_ context.Context, companyID, email string) (models.CustomerAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.st.customers {
		if c.CompanyID == companyID && sameEmail(c.Email, email) {
			return c, nil
		}
	}
	return models.CustomerAccount{}, repository.ErrNotFound
}

func (r *customers) GetCustomerByID(_ context.Context, id string) (models.CustomerAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.st.customers[id]; ok {
		return c, nil
	}
	return models.CustomerAccount{}, repository.ErrNotFound
}

func (r *customers) ListCustomersByCompany(_ context.Context, companyID string) ([]models.CustomerAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.CustomerAccount
	for _, c := range r.s.st.customers {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *customers) ActivateCustomer(_ context.Context, id, passwordHash string, verifiedAt time.Time) (models.CustomerAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.customers[id]
	if !ok {
		return models.CustomerAccount{}, repository.ErrNotFound
	}
	hash := passwordHash
	c.PasswordHash = &hash
	c.PortalAccess = true
	if c.VerifiedAt == nil {
		v := verifiedAt
		c.VerifiedAt = &v
	}
	c.UpdatedAt = r.s.now()
	r.s.st.customers[id] = c
	return c, nil
}

func (r *customers) SetPortalAccess(_ context.Context, id string, enabled bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.customers[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.PortalAccess = enabled
	c.UpdatedAt = r.s.now()
	r.s.st.customers[id] = c
	return nil
}

type invites struct{ s *Store }

func (r *invites) CreateInvite(_ context.Context, invite models.Invitation) (models.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.companies[invite.CompanyID]; !ok {
		return models.Invitation{}, repository.ErrNotFound
	}
	for _, inv := range r.s.st.invites {
		if inv.TokenHash == invite.TokenHash {
			return models.Invitation{}, repository.ErrDuplicate
		}
	}
	invite.ID = uuid.NewString()
	invite.CreatedAt = r.s.now()
	invite.AcceptedAt = nil
	r.s.st.invites[invite.ID] = invite
	return invite, nil
}

func (r *invites) GetInviteByTokenHash(_ context.Context, tokenHash string) (models.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.st.invites {
		if inv.TokenHash == tokenHash {
			return inv, nil
		}
	}
	return models.Invitation{}, repository.ErrNotFound
}

// LockInviteByTokenHash relies on WithTx for exclusivity.
func (r *invites) LockInviteByTokenHash(ctx context.Context, tokenHash string) (models.Invitation, error) {
	return r.GetInviteByTokenHash(ctx, tokenHash)
}

func (r *invites) MarkInviteAccepted(_ context.Context, inviteID string, acceptedAt time.Time) (models.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.st.invites[inviteID]
	if !ok || inv.AcceptedAt != nil {
		return models.Invitation{}, repository.ErrNotFound
	}
	at := acceptedAt
	inv.AcceptedAt = &at
	r.s.st.invites[inviteID] = inv
	return inv, nil
}

func (r *invites) ListInvitesByCompany(_ context.Context, companyID string) ([]models.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Invitation
	for _, inv := range r.s.st.invites {
		if inv.CompanyID == companyID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type roles struct{ s *Store }

func (r *roles) EnsurePermission(_ context.Context, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.permissions[name] = struct{}{}
	return nil
}

func (r *roles) EnsureRole(_ context.Context, name string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.st.roles[name]; ok {
		return id, nil
	}
	id := uuid.NewString()
	r.s.st.roles[name] = id
	r.s.st.rolePerms[id] = map[string]struct{}{}
	return id, nil
}

func (r *roles) FindRoleID(_ context.Context, name string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.st.roles[name]; ok {
		return id, nil
	}
	return "", repository.ErrNotFound
}

func (r *roles) SyncRolePermissions(_ context.Context, roleID string, permissions []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.rolePerms[roleID]; !ok {
		return repository.ErrNotFound
	}
	set := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		if _, ok := r.s.st.permissions[p]; ok {
			set[p] = struct{}{}
		}
	}
	r.s.st.rolePerms[roleID] = set
	return nil
}

func (r *roles) TransferPrincipalRoles(_ context.Context, fromRoleID, toRoleID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var moved int64
	for l := range r.s.st.links {
		if l.roleID != fromRoleID {
			continue
		}
		target := principalRole{realm: l.realm, principalID: l.principalID, roleID: toRoleID}
		if _, ok := r.s.st.links[target]; !ok {
			r.s.st.links[target] = struct{}{}
			moved++
		}
		delete(r.s.st.links, l)
	}
	return moved, nil
}

func (r *roles) RenameAssignedRole(_ context.Context, from, to string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, m := range r.s.st.members {
		if string(m.Role) == from {
			m.Role = models.MemberRole(to)
			r.s.st.members[id] = m
			n++
		}
	}
	for k, m := range r.s.st.memberships {
		if m.Role == from {
			m.Role = to
			r.s.st.memberships[k] = m
			n++
		}
	}
	return n, nil
}

func (r *roles) DeleteRole(_ context.Context, roleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for name, id := range r.s.st.roles {
		if id == roleID {
			delete(r.s.st.roles, name)
			delete(r.s.st.rolePerms, id)
			for l := range r.s.st.links {
				if l.roleID == id {
					delete(r.s.st.links, l)
				}
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *roles) RolePermissions(_ context.Context) (map[string][]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string][]string, len(r.s.st.roles))
	for name, id := range r.s.st.roles {
		perms := make([]string, 0, len(r.s.st.rolePerms[id]))
		for p := range r.s.st.rolePerms[id] {
			perms = append(perms, p)
		}
		sort.Strings(perms)
		out[name] = perms
	}
	return out, nil
}

func (r *roles) AssignRole(_ context.Context, realm models.Realm, principalID, roleName string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.st.roles[roleName]
	if !ok {
		return repository.ErrNotFound
	}
	r.s.st.links[principalRole{realm: realm, principalID: principalID, roleID: id}] = struct{}{}
	return nil
}

func (r *roles) PrincipalRoleNames(_ context.Context, realm models.Realm, principalID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for l := range r.s.st.links {
		if l.realm != realm || l.principalID != principalID {
			continue
		}
		for name, id := range r.s.st.roles {
			if id == l.roleID {
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
