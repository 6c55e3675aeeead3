package migration

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreAnnotated(t *testing.T) {
	files, err := fs.Glob(embeddedMigrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		body, err := fs.ReadFile(embeddedMigrations, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestScopedTablesCascadeFromCompanies(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, "migrations/00001_identity.sql")
	require.NoError(t, err)
	sql := string(body)

	for _, table := range []string{"company_members", "customer_accounts", "invitations", "admin_company_memberships"} {
		start := strings.Index(sql, "CREATE TABLE ops."+table)
		require.GreaterOrEqual(t, start, 0, table)
		end := strings.Index(sql[start:], ");")
		block := sql[start : start+end]
		assert.Contains(t, block, "company_id", table)
		assert.Contains(t, block, "REFERENCES ops.companies (id) ON DELETE CASCADE", table)
	}
}

func TestGooseAdapterWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewGooseAdapter(zerolog.New(&buf))

	adapter.Printf("OK   %s (%s)\n", "00001_identity.sql", "3ms")

	assert.Contains(t, buf.String(), `"component":"goose"`)
	assert.Contains(t, buf.String(), "00001_identity.sql")
}
