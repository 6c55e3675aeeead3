package tenant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stanstork/opsdesk-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompanies struct {
	bySlug map[string]models.Company
	calls  int
	err    error
}

func (s *stubCompanies) GetActiveCompanyBySlug(_ context.Context, slug string) (models.Company, error) {
	s.calls++
	if s.err != nil {
		return models.Company{}, s.err
	}
	c, ok := s.bySlug[slug]
	if !ok || !c.IsActive {
		return models.Company{}, repository.ErrNotFound
	}
	return c, nil
}

func newStub() *stubCompanies {
	return &stubCompanies{bySlug: map[string]models.Company{
		"acme":   {ID: "c1", Slug: "acme", Name: "Acme", IsActive: true},
		"closed": {ID: "c2", Slug: "closed", Name: "Closed", IsActive: false},
	}}
}

func TestResolveCachesActiveCompanies(t *testing.T) {
	stub := newStub()
	r := NewResolver(stub, 8, time.Minute, zerolog.Nop())
	ctx := context.Background()

	c, err := r.Resolve(ctx, " ACME ")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	_, err = r.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)

	r.Invalidate("acme")
	_, err = r.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestResolveRejectsInactiveAndUnknown(t *testing.T) {
	stub := newStub()
	r := NewResolver(stub, 8, time.Minute, zerolog.Nop())
	ctx := context.Background()

	for _, slug := range []string{"closed", "missing", "Bad Slug!", ""} {
		_, err := r.Resolve(ctx, slug)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err), slug)
	}
	_, _ = r.Resolve(ctx, "closed")
	assert.Equal(t, 3, stub.calls)
}

func TestResolveStoreFailure(t *testing.T) {
	stub := newStub()
	stub.err = errors.New("connection reset")
	r := NewResolver(stub, 8, time.Minute, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "acme")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestMiddlewareBindsCompany(t *testing.T) {
	r := NewResolver(newStub(), 8, time.Minute, zerolog.Nop())
	router := mux.NewRouter()
	sub := router.PathPrefix("/company/{company}").Subrouter()
	sub.Use(r.Middleware("company"))
	sub.HandleFunc("/dashboard", func(w http.ResponseWriter, req *http.Request) {
		c, ok := FromContext(req.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(c.ID))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/company/acme/dashboard", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c1", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/company/closed/dashboard", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFromContextEmpty(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
