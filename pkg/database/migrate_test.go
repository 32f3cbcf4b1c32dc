package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_b.sql":   {Data: []byte("SELECT 2")},
		"migrations/001_a.sql":   {Data: []byte("SELECT 1")},
		"migrations/README.md":   {Data: []byte("notes")},
		"migrations/old/003.sql": {Data: []byte("SELECT 3")},
	}
	names, err := MigrationNames(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, names)
}

func TestEmbeddedMigrationsCreateContactLeads(t *testing.T) {
	names, err := MigrationNames(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, names)

	sql, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	assert.Contains(t, string(sql), "contact_leads")
}
