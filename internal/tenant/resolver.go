package tenant

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
	"github.com/stanstork/opsdesk-api/internal/respond"
)

type CompanyStore interface {
	GetActiveCompanyBySlug(ctx context.Context, slug string) (models.Company, error)
}

// Resolver maps routable slugs onto active companies.
type Resolver struct {
	companies CompanyStore
	cache     *expirable.LRU[string, models.Company]
	logger    zerolog.Logger
}

func NewResolver(companies CompanyStore, size int, ttl time.Duration, logger zerolog.Logger) *Resolver {
	if size <= 0 {
		size = 512
	}
	return &Resolver{
		companies: companies,
		cache:     expirable.NewLRU[string, models.Company](size, nil, ttl),
		logger:    logger.With().Str("component", "tenant_resolver").Logger(),
	}
}

// Resolve returns the active company for slug. Unknown and inactive slugs
// are NotFound and are never cached.
func (r *Resolver) Resolve(ctx context.Context, slug string) (models.Company, error) {
	slug = models.NormalizeSlug(slug)
	if !models.IsValidSlug(slug) {
		return models.Company{}, apperr.NotFound("company not found")
	}
	if company, ok := r.cache.Get(slug); ok {
		return company, nil
	}

	company, err := r.companies.GetActiveCompanyBySlug(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Company{}, apperr.NotFound("company not found")
	}
	if err != nil {
		return models.Company{}, apperr.Wrap(apperr.KindInternal, "resolve company", err)
	}
	r.cache.Add(slug, company)
	return company, nil
}

// Invalidate drops slug from the cache.
func (r *Resolver) Invalidate(slug string) {
	r.cache.Remove(models.NormalizeSlug(slug))
}

// Middleware binds the company named by the route variable param.
func (r *Resolver) Middleware(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			company, err := r.Resolve(req.Context(), mux.Vars(req)[param])
			if err != nil {
				if apperr.KindOf(err) == apperr.KindInternal {
					r.logger.Error().Err(err).Str("path", req.URL.Path).Msg("tenant resolution failed")
				}
				respond.Error(w, err)
				return
			}
			next.ServeHTTP(w, req.WithContext(WithCompany(req.Context(), company)))
		})
	}
}

type contextKey struct{}

func WithCompany(ctx context.Context, company models.Company) context.Context {
	return context.WithValue(ctx, contextKey{}, company)
}

// FromContext returns the company bound by Middleware.
func FromContext(ctx context.Context) (models.Company, bool) {
	company, ok := ctx.Value(contextKey{}).(models.Company)
	return company, ok && company.ID != ""
}
