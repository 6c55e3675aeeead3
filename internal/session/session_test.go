package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupManager(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewManager(rdb, Options{Secret: testSecret, TTL: time.Hour})
}

func issue(t *testing.T, m *Manager, p models.Principal, path string) (*http.Cookie, Session) {
	t.Helper()
	rec := httptest.NewRecorder()
	s, err := m.Create(context.Background(), rec, p, path)
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0], s
}

func requestWith(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestCreateAndLoad(t *testing.T) {
	mr, m := setupManager(t)
	p := models.Principal{Realm: models.RealmStaff, AccountID: "m1", CompanyID: "c1"}

	cookie, created := issue(t, m, p, "/company")
	assert.Equal(t, "ops_staff_session", cookie.Name)
	assert.Equal(t, "/company", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, mr.Exists("session:staff:"+created.ID))

	loaded, err := m.Load(context.Background(), models.RealmStaff, requestWith(cookie))
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, "m1", loaded.AccountID)
	assert.Equal(t, "c1", loaded.CompanyID)
}

func TestLoadRejectsOtherRealm(t *testing.T) {
	_, m := setupManager(t)
	staff, _ := issue(t, m, models.Principal{Realm: models.RealmStaff, AccountID: "m1", CompanyID: "c1"}, "/")

	// Same token presented under the portal cookie name.
	forged := &http.Cookie{Name: CookieName(models.RealmCustomer), Value: staff.Value}
	_, err := m.Load(context.Background(), models.RealmCustomer, requestWith(forged))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestLoadRejectsTamperedAndMissing(t *testing.T) {
	mr, m := setupManager(t)
	cookie, s := issue(t, m, models.Principal{Realm: models.RealmCustomer, AccountID: "u1", CompanyID: "c1"}, "/")
	ctx := context.Background()

	_, err := m.Load(ctx, models.RealmCustomer, requestWith())
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	tampered := &http.Cookie{Name: cookie.Name, Value: cookie.Value + "x"}
	_, err = m.Load(ctx, models.RealmCustomer, requestWith(tampered))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	other := NewManager(m.rdb, Options{Secret: "another-secret-another-secret-xx", TTL: time.Hour})
	_, err = other.Load(ctx, models.RealmCustomer, requestWith(cookie))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	mr.Del("session:customer:" + s.ID)
	_, err = m.Load(ctx, models.RealmCustomer, requestWith(cookie))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestSessionExpiresWithTTL(t *testing.T) {
	mr, m := setupManager(t)
	cookie, _ := issue(t, m, models.Principal{Realm: models.RealmAdmin, AccountID: "a1"}, "/admin")

	mr.FastForward(2 * time.Hour)
	_, err := m.Load(context.Background(), models.RealmAdmin, requestWith(cookie))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestDestroy(t *testing.T) {
	mr, m := setupManager(t)
	cookie, s := issue(t, m, models.Principal{Realm: models.RealmAdmin, AccountID: "a1"}, "/admin")

	rec := httptest.NewRecorder()
	require.NoError(t, m.Destroy(context.Background(), rec, requestWith(cookie), models.RealmAdmin, "/admin"))
	assert.False(t, mr.Exists("session:admin:"+s.ID))

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "", cleared[0].Value)
	assert.True(t, cleared[0].MaxAge < 0)

	_, err := m.Load(context.Background(), models.RealmAdmin, requestWith(cookie))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestCreateRejectsUnknownRealm(t *testing.T) {
	_, m := setupManager(t)
	_, err := m.Create(context.Background(), httptest.NewRecorder(), models.Principal{Realm: "root"}, "/")
	assert.Error(t, err)
}
