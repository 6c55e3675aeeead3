package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a lookup or conditional write matches no row.
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("duplicate key violation")
)

const pqUniqueViolation = "23505"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repositories bundles every repository bound to the same runner.
type Repositories struct {
	Companies   CompanyRepository
	Admins      AdminRepository
	Members     MemberRepository
	Customers   CustomerRepository
	Invitations InviteRepository
	Roles       RoleRepository
}

func New(db DBTX) Repositories {
	return Repositories{
		Companies:   NewCompanyRepository(db),
		Admins:      NewAdminRepository(db),
		Members:     NewMemberRepository(db),
		Customers:   NewCustomerRepository(db),
		Invitations: NewInviteRepository(db),
		Roles:       NewRoleRepository(db),
	}
}

// Store owns the connection pool and hands out transaction-bound repositories.
type Store struct {
	Repositories
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{Repositories: New(db), db: db}
}

// WithTx runs fn inside a read-committed transaction. The transaction is
// rolled back when fn returns an error and committed otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	if err := fn(New(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// translate maps driver errors onto the package sentinels.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return errors.Wrapf(ErrDuplicate, "%s: %s", op, pqErr.Constraint)
	}
	return errors.Wrap(err, op)
}

func expectAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
