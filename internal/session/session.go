package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stanstork/opsdesk-api/internal/apperr"
	"github.com/stanstork/opsdesk-api/internal/models"
)

var cookieNames = map[models.Realm]string{
	models.RealmAdmin:    "ops_admin_session",
	models.RealmStaff:    "ops_staff_session",
	models.RealmCustomer: "ops_portal_session",
}

// CookieName returns the session cookie used by realm.
func CookieName(realm models.Realm) string {
	return cookieNames[realm]
}

// Session is the server-side record behind a session cookie.
type Session struct {
	ID        string       `json:"id"`
	Realm     models.Realm `json:"realm"`
	AccountID string       `json:"account_id"`
	CompanyID string       `json:"company_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type claims struct {
	Realm     models.Realm `json:"realm"`
	CompanyID string       `json:"cid,omitempty"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret string
	TTL    time.Duration
	Secure bool
}

// Manager stores sessions in Redis and hands the client a signed reference.
type Manager struct {
	rdb    *redis.Client
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(rdb *redis.Client, opts Options) *Manager {
	return &Manager{
		rdb:    rdb,
		secret: []byte(opts.Secret),
		ttl:    opts.TTL,
		secure: opts.Secure,
		now:    time.Now,
	}
}

func key(realm models.Realm, id string) string {
	return fmt.Sprintf("session:%s:%s", realm, id)
}

// Create persists a session for p and sets the realm cookie scoped to path.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, p models.Principal, path string) (Session, error) {
	if _, ok := cookieNames[p.Realm]; !ok {
		return Session{}, fmt.Errorf("unknown realm %q", p.Realm)
	}
	now := m.now().UTC()
	s := Session{
		ID:        uuid.NewString(),
		Realm:     p.Realm,
		AccountID: p.AccountID,
		CompanyID: p.CompanyID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return Session{}, errors.Wrap(err, "encode session")
	}
	if err := m.rdb.Set(ctx, key(s.Realm, s.ID), payload, m.ttl).Err(); err != nil {
		return Session{}, errors.Wrap(err, "store session")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Realm:     s.Realm,
		CompanyID: s.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Subject:   s.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return Session{}, errors.Wrap(err, "sign session reference")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName(s.Realm),
		Value:    signed,
		Path:     path,
		Expires:  s.ExpiresAt,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s, nil
}

// Load returns the live session of realm referenced by r. Anything short of a
// valid, unexpired reference backed by a matching record is Unauthorized.
func (m *Manager) Load(ctx context.Context, realm models.Realm, r *http.Request) (Session, error) {
	name, ok := cookieNames[realm]
	if !ok {
		return Session{}, apperr.New(apperr.KindUnauthorized, "authentication required")
	}
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return Session{}, apperr.New(apperr.KindUnauthorized, "authentication required")
	}

	c, err := m.parse(cookie.Value)
	if err != nil || c.Realm != realm {
		return Session{}, apperr.New(apperr.KindUnauthorized, "invalid session")
	}

	raw, err := m.rdb.Get(ctx, key(realm, c.ID)).Bytes()
	if err == redis.Nil {
		return Session{}, apperr.New(apperr.KindUnauthorized, "session expired")
	}
	if err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "load session", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "decode session", err)
	}
	if s.Realm != realm || s.AccountID != c.Subject || s.CompanyID != c.CompanyID {
		return Session{}, apperr.New(apperr.KindUnauthorized, "invalid session")
	}
	return s, nil
}

// Destroy removes the session referenced by r, if any, and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request, realm models.Realm, path string) error {
	name, ok := cookieNames[realm]
	if !ok {
		return fmt.Errorf("unknown realm %q", realm)
	}
	if cookie, err := r.Cookie(name); err == nil {
		if c, err := m.parse(cookie.Value); err == nil && c.Realm == realm {
			if err := m.rdb.Del(ctx, key(realm, c.ID)).Err(); err != nil {
				return errors.Wrap(err, "delete session")
			}
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) parse(value string) (*claims, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(value, c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || c.ID == "" {
		return nil, jwt.ErrTokenMalformed
	}
	return c, nil
}
