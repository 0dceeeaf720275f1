package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/smallbiznis/ledgercore/internal/account/domain"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
	reconciliationdomain "github.com/smallbiznis/ledgercore/internal/reconciliation/domain"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// Run brings the schema up to date. Postgres uses the versioned SQL files;
// other dialects are migrated from the models.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(conn)
}

// RunMigrations applies the embedded SQL migrations to a postgres database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.
	return nil
}

// Models lists every persisted type.
func Models() []any {
	return []any{
		&accountdomain.Account{},
		&journaldomain.AccountBalance{},
		&journaldomain.EntrySequence{},
		&journaldomain.JournalEntry{},
		&journaldomain.JournalLine{},
		&reconciliationdomain.IntermediaryAccount{},
		&reconciliationdomain.Voucher{},
		&reconciliationdomain.ReconciliationMatch{},
	}
}

var uniqueIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_journal_entries_number ON journal_entries (tenant_id, period, sequence)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_journal_entries_source ON journal_entries (tenant_id, source_module, source_id, event_type)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_journal_entries_reversal_of ON journal_entries (reversal_of_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_vouchers_reference ON vouchers (tenant_id, subsystem, reference)`,
}

var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_reconciliation_matches_outbound_live ON reconciliation_matches (outbound_voucher_id) WHERE status <> 'rejected'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_reconciliation_matches_inbound_live ON reconciliation_matches (inbound_voucher_id) WHERE status <> 'rejected'`,
}

// AutoMigrate creates missing tables and columns from the models and adds
// the uniqueness guards the models cannot express. Existing columns are never
// altered, so a second run against the same database is a no-op. MySQL has no
// partial indexes; there the single live match per voucher rests on the
// voucher status transition alone.
func AutoMigrate(conn *gorm.DB) error {
	migrator := conn.Migrator()
	for _, model := range Models() {
		if !migrator.HasTable(model) {
			if err := migrator.CreateTable(model); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
			continue
		}
		if err := addMissingColumns(conn, model); err != nil {
			return err
		}
	}

	statements := uniqueIndexes
	if conn.Dialector.Name() != "mysql" {
		statements = append(append([]string{}, uniqueIndexes...), partialIndexes...)
	}
	for _, stmt := range statements {
		name := indexName(stmt)
		if migrator.HasIndex(indexTable(stmt), name) {
			continue
		}
		if conn.Dialector.Name() == "mysql" {
			stmt = mysqlIndexStatement(stmt)
		}
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

func addMissingColumns(conn *gorm.DB, model any) error {
	stmt := &gorm.Statement{DB: conn}
	if err := stmt.Parse(model); err != nil {
		return fmt.Errorf("parse model: %w", err)
	}
	migrator := conn.Migrator()
	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" || field.IgnoreMigration {
			continue
		}
		if migrator.HasColumn(model, field.DBName) {
			continue
		}
		if err := migrator.AddColumn(model, field.DBName); err != nil {
			return fmt.Errorf("add column %s.%s: %w", stmt.Schema.Table, field.DBName, err)
		}
	}
	return nil
}
