package permission

import (
	"sort"

	"github.com/stanstork/opsdesk-api/internal/models"
)

const (
	DashboardView      = "dashboard.view"
	MembersView        = "members.view"
	MembersManage      = "members.manage"
	InvitationsView    = "invitations.view"
	InvitationsCreate  = "invitations.create"
	CustomersView      = "customers.view"
	CustomersManage    = "customers.manage"
	InvoicesView       = "invoices.view"
	InvoicesManage     = "invoices.manage"
	WorkOrdersView     = "work_orders.view"
	WorkOrdersManage   = "work_orders.manage"
	FleetView          = "fleet.view"
	FleetManage        = "fleet.manage"
	PortalView         = "portal.view"
	PortalInvoicesView = "portal.invoices.view"
)

// Catalog is the declared role and permission set applied by Reconcile.
type Catalog struct {
	Roles map[string][]string
	// Legacy maps retired role names to their canonical replacement.
	Legacy map[string]string
}

var staffPermissions = []string{
	DashboardView,
	MembersView, MembersManage,
	InvitationsView, InvitationsCreate,
	CustomersView, CustomersManage,
	InvoicesView, InvoicesManage,
	WorkOrdersView, WorkOrdersManage,
	FleetView, FleetManage,
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Roles: map[string][]string{
			models.RoleOwner:                 staffPermissions,
			string(models.MemberRoleAdmin):   staffPermissions,
			string(models.MemberRoleManager): {DashboardView, MembersView, InvitationsView, InvitationsCreate, CustomersView, CustomersManage, InvoicesView, InvoicesManage, WorkOrdersView, WorkOrdersManage, FleetView, FleetManage},
			string(models.MemberRoleStaff):   {DashboardView, CustomersView, InvoicesView, WorkOrdersView, WorkOrdersManage, FleetView},
			string(models.MemberRoleDriver):  {DashboardView, WorkOrdersView, FleetView},
			string(models.MemberRoleViewer):  {DashboardView, MembersView, CustomersView, InvoicesView, WorkOrdersView, FleetView},
			models.RoleCustomer:              {PortalView, PortalInvoicesView},
		},
		Legacy: map[string]string{
			"company_admin":   string(models.MemberRoleAdmin),
			"super_admin":     models.RoleOwner,
			"portal_customer": models.RoleCustomer,
			"dispatcher":      string(models.MemberRoleManager),
		},
	}
}

// Permissions returns every permission referenced by a role, sorted.
func (c Catalog) Permissions() []string {
	seen := map[string]struct{}{}
	for _, perms := range c.Roles {
		for _, p := range perms {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RoleNames returns the declared role names, sorted.
func (c Catalog) RoleNames() []string {
	out := make([]string, 0, len(c.Roles))
	for name := range c.Roles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasRole reports whether name is a declared role.
func (c Catalog) HasRole(name string) bool {
	_, ok := c.Roles[name]
	return ok
}

// Mapping returns a normalized copy of the role to permission table.
func (c Catalog) Mapping() map[string][]string {
	out := make(map[string][]string, len(c.Roles))
	for role, perms := range c.Roles {
		out[role] = models.NormalizeRoleNames(perms)
	}
	return out
}
