package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestProfilesMigrationContainsSchema(t *testing.T) {
	content := readMigration(t, "create_users_and_profiles")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS users",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email",
		"CREATE TABLE IF NOT EXISTS profiles",
		"uid uuid PRIMARY KEY REFERENCES users(id)",
		"profile_complete boolean NOT NULL DEFAULT false",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestListingsMigrationContainsSchema(t *testing.T) {
	content := readMigration(t, "create_categories_and_listings")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS categories",
		"CONSTRAINT categories_name_key UNIQUE (name)",
		"CREATE TABLE IF NOT EXISTS listings",
		"CHECK (price >= 0)",
		"CHECK (status IN ('pending', 'approved', 'rejected'))",
		"CREATE INDEX IF NOT EXISTS idx_listings_status_created_at",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Listing Views!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_listing_views.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	src := migrate.EmbeddedSource()
	require.NoError(t, migrate.ValidateFS(src.FS, src.Dir))

	embedded, err := fs.Glob(src.FS, "migrations/*.sql")
	require.NoError(t, err)
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.Len(t, embedded, len(onDisk))
}
