package migration

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:migration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return conn
}

const insertEntry = `INSERT INTO journal_entries (id, tenant_id, entry_number, period, entry_date, type, description,
	status, source_module, source_id, event_type, total_debit, total_credit, created_at, updated_at)
	VALUES (?, 1, '', '2024-05', '2024-05-01', 'auto_sales', '', 'draft', 'billing', 'INV-1', 'invoice.issued', 0, 0, ?, ?)`

func TestAutoMigrateIsIdempotent(t *testing.T) {
	conn := openSQLite(t)

	require.NoError(t, Run(conn))
	now := time.Now().UTC()
	require.NoError(t, conn.Exec(insertEntry, 1, now, now).Error)

	require.NoError(t, Run(conn))
	require.NoError(t, Run(conn))

	var count int64
	require.NoError(t, conn.Table("journal_entries").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	for _, table := range []string{"accounts", "journal_entries", "journal_lines", "account_balances",
		"entry_sequences", "intermediary_accounts", "vouchers", "reconciliation_matches"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex("journal_entries", "ux_journal_entries_source"))
	assert.True(t, conn.Migrator().HasIndex("reconciliation_matches", "ux_reconciliation_matches_inbound_live"))
	assert.Error(t, conn.Exec(insertEntry, 2, now, now).Error)
}

func TestAutoMigrateAddsMissingColumns(t *testing.T) {
	conn := openSQLite(t)
	require.NoError(t, conn.Exec(`CREATE TABLE accounts (id integer PRIMARY KEY, tenant_id integer NOT NULL,
		code text NOT NULL, name text NOT NULL, category text NOT NULL, nature text NOT NULL, parent_id integer,
		level integer NOT NULL, is_parent numeric NOT NULL, currency text NOT NULL,
		opening_balance decimal(20,4) NOT NULL, is_active numeric NOT NULL,
		created_at datetime NOT NULL, updated_at datetime NOT NULL)`).Error)
	require.False(t, conn.Migrator().HasColumn("accounts", "local_name"))

	require.NoError(t, AutoMigrate(conn))

	assert.True(t, conn.Migrator().HasColumn("accounts", "local_name"))
	assert.True(t, conn.Migrator().HasTable("vouchers"))
}

func TestSourceIndexRejectsDuplicates(t *testing.T) {
	conn := openSQLite(t)
	require.NoError(t, AutoMigrate(conn))

	now := time.Now().UTC()
	require.NoError(t, conn.Exec(insertEntry, 1, now, now).Error)
	assert.Error(t, conn.Exec(insertEntry, 2, now, now).Error)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestIndexStatementHelpers(t *testing.T) {
	stmt := uniqueIndexes[0]
	assert.Equal(t, "ux_journal_entries_number", indexName(stmt))
	assert.Equal(t, "journal_entries", indexTable(stmt))
	assert.NotContains(t, mysqlIndexStatement(stmt), "IF NOT EXISTS")
}
