package permission

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

// Enforcer answers role/permission questions from a loaded mapping.
// Reload swaps the underlying casbin enforcer atomically.
type Enforcer struct {
	current atomic.Pointer[loaded]
}

type loaded struct {
	enforcer *casbin.SyncedEnforcer
	mapping  map[string][]string
}

func NewEnforcer(mapping map[string][]string) (*Enforcer, error) {
	e := &Enforcer{}
	if err := e.Reload(mapping); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Enforcer) Reload(mapping map[string][]string) error {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return fmt.Errorf("parse casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return fmt.Errorf("create casbin enforcer: %w", err)
	}

	copied := make(map[string][]string, len(mapping))
	roles := make([]string, 0, len(mapping))
	for role, perms := range mapping {
		copied[role] = append([]string(nil), perms...)
		roles = append(roles, role)
	}
	sort.Strings(roles)
	var rules [][]string
	for _, role := range roles {
		seen := map[string]struct{}{}
		for _, perm := range mapping[role] {
			if _, dup := seen[perm]; dup {
				continue
			}
			seen[perm] = struct{}{}
			rules = append(rules, []string{role, perm})
		}
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return fmt.Errorf("load casbin policies: %w", err)
		}
	}
	e.current.Store(&loaded{enforcer: enforcer, mapping: copied})
	return nil
}

// Allowed reports whether any of roles grants permission.
func (e *Enforcer) Allowed(roles []string, permission string) bool {
	l := e.current.Load()
	if l == nil {
		return false
	}
	for _, role := range roles {
		ok, err := l.enforcer.Enforce(role, permission)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// Evaluate applies per-principal overrides on top of the role grants.
// An explicit false revokes, an explicit true grants.
func (e *Enforcer) Evaluate(roles []string, overrides map[string]bool, permission string) bool {
	if granted, ok := overrides[permission]; ok {
		return granted
	}
	return e.Allowed(roles, permission)
}

// Permissions lists every permission granted to roles, sorted.
func (e *Enforcer) Permissions(roles []string) []string {
	l := e.current.Load()
	if l == nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, role := range roles {
		for _, perm := range l.mapping[role] {
			seen[perm] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
