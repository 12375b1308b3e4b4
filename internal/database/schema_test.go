package database

import (
	"io/fs"
	"strings"
	"testing"

	"storefront/internal/config"
	"storefront/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, name string) string {
	t.Helper()
	content, err := fs.ReadFile(migrations.FS, name)
	require.NoError(t, err, "migration %s should be embedded", name)
	return string(content)
}

func TestMigrationFilesExist(t *testing.T) {
	expectedMigrations := []string{
		"00001_create_users_table.sql",
		"00002_create_refresh_tokens_table.sql",
		"00003_create_products_table.sql",
		"00004_create_products_notify_trigger.sql",
	}

	for _, migration := range expectedMigrations {
		_, err := fs.Stat(migrations.FS, migration)
		assert.NoError(t, err, "Migration file %s does not exist", migration)
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	files, err := fs.ReadDir(migrations.FS, ".")
	require.NoError(t, err)

	sqlFileCount := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		sqlFileCount++
		contentStr := readMigration(t, file.Name())

		for _, directive := range []string{
			"-- +goose Up",
			"-- +goose Down",
			"-- +goose StatementBegin",
			"-- +goose StatementEnd",
		} {
			assert.Contains(t, contentStr, directive, "Migration file %s missing %q", file.Name(), directive)
		}
	}

	assert.NotZero(t, sqlFileCount, "No SQL migration files found")
}

func TestMigrationFilesCreateExpectedTables(t *testing.T) {
	expectedTables := map[string]string{
		"users":          "00001_create_users_table.sql",
		"refresh_tokens": "00002_create_refresh_tokens_table.sql",
		"products":       "00003_create_products_table.sql",
	}

	for tableName, migrationFile := range expectedTables {
		contentStr := readMigration(t, migrationFile)

		assert.Contains(t, contentStr, "CREATE TABLE IF NOT EXISTS "+tableName)
		assert.Contains(t, contentStr, "DROP TABLE IF EXISTS "+tableName)
	}
}

func TestProductsTableAssignsIdentityInStore(t *testing.T) {
	contentStr := readMigration(t, "00003_create_products_table.sql")

	assert.Contains(t, contentStr, "id TEXT PRIMARY KEY DEFAULT")
	assert.Contains(t, contentStr, "created_at TIMESTAMPTZ NOT NULL DEFAULT now()")
	assert.Contains(t, contentStr, "((left(id, 6)))")
	assert.Contains(t, contentStr, "CHECK (price > 0)")
}

func TestProductsTriggerNotifiesChanges(t *testing.T) {
	contentStr := readMigration(t, "00004_create_products_notify_trigger.sql")

	assert.Contains(t, contentStr, "pg_notify(")
	assert.Contains(t, contentStr, "'products_changed'")
	assert.Contains(t, contentStr, "AFTER INSERT OR UPDATE OR DELETE ON products")
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		User:     "shop",
		Password: "p@ss word",
		Database: "storefront",
		Schema:   "public",
	})

	assert.True(t, strings.HasPrefix(dsn, "postgres://shop:p%40ss%20word@db:5432/storefront?"), dsn)
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "search_path=public")
}
