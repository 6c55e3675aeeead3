package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/authz"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/tenant"
)

// realmPrefix is the URL prefix of realm's routes for company.
func realmPrefix(realm models.Realm, company models.Company) string {
	switch realm {
	case models.RealmStaff:
		return models.InvitationStaff.PathPrefix(company.Slug)
	case models.RealmCustomer:
		return models.InvitationCustomer.PathPrefix(company.Slug)
	}
	return "/admin"
}

// cookiePath scopes a realm's session cookie to the realm root, so a
// session presented under another company reaches the tenant check.
func cookiePath(realm models.Realm) string {
	switch realm {
	case models.RealmStaff:
		return "/company"
	case models.RealmCustomer:
		return "/customer-portal"
	}
	return "/admin"
}

func principalFrom(r *http.Request) (models.Principal, error) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		return models.Principal{}, apperr.New(apperr.KindUnauthorized, "authentication required")
	}
	return p, nil
}

func companyFrom(r *http.Request) (models.Company, error) {
	company, ok := tenant.FromContext(r.Context())
	if !ok {
		return models.Company{}, apperr.NotFound("company not found")
	}
	return company, nil
}

// routeID returns the {id} route variable if it is a well-formed UUID.
func routeID(r *http.Request) (string, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
