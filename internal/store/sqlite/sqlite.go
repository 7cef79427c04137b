// Package sqlite provides a SQLite-backed implementation of the
// store.Repository port for the singleton sealed settings row.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/haukened/roomtemp/internal/domain"
	"github.com/haukened/roomtemp/internal/store"

	// database/sql SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ store.Repository = (*Repository)(nil)

// Repository implements store.Repository using SQLite. It is safe for
// concurrent use; database/sql manages connection pooling.
type Repository struct{ db *sqlx.DB }

// New constructs a Repository, applying pending schema migrations first.
func New(db *sql.DB) (*Repository, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Repository{db: sqlx.NewDb(db, "sqlite3")}, nil
}

// Migrate brings the schema up to date. The db handle stays open.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	defer src.Close()
	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

type settingsRow struct {
	ID         int    `db:"id"`
	URL        string `db:"url"`
	Ciphertext []byte `db:"encrypted_access_token"`
	Nonce      []byte `db:"encrypted_access_token_nonce"`
	UseProxies bool   `db:"use_proxies"`
	ProxyURL   string `db:"proxy_url"`
}

func toRow(s store.Sealed) settingsRow {
	return settingsRow{
		ID:         domain.SettingsID,
		URL:        s.URL,
		Ciphertext: s.Ciphertext,
		Nonce:      s.Nonce,
		UseProxies: s.UseProxies,
		ProxyURL:   s.ProxyURL,
	}
}

const insertSQL = `INSERT INTO settings (id, url, encrypted_access_token, encrypted_access_token_nonce, use_proxies, proxy_url)
VALUES (:id, :url, :encrypted_access_token, :encrypted_access_token_nonce, :use_proxies, :proxy_url)`

// Load returns the singleton row or store.ErrNoRecord.
func (r *Repository) Load(ctx context.Context) (store.Sealed, error) {
	const q = `SELECT id, url, encrypted_access_token, encrypted_access_token_nonce, use_proxies, proxy_url FROM settings WHERE id = ?`
	var row settingsRow
	if err := r.db.GetContext(ctx, &row, q, domain.SettingsID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Sealed{}, store.ErrNoRecord
		}
		return store.Sealed{}, err
	}
	return store.Sealed{
		URL:        row.URL,
		Ciphertext: row.Ciphertext,
		Nonce:      row.Nonce,
		UseProxies: row.UseProxies,
		ProxyURL:   row.ProxyURL,
	}, nil
}

// InsertDefault inserts s unless a row already exists.
func (r *Repository) InsertDefault(ctx context.Context, s store.Sealed) error {
	_, err := r.db.NamedExecContext(ctx, insertSQL+` ON CONFLICT(id) DO NOTHING`, toRow(s))
	return err
}

// Replace deletes and re-inserts the singleton row inside one transaction.
func (r *Repository) Replace(ctx context.Context, s store.Sealed) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM settings WHERE id = ?`, domain.SettingsID); err != nil {
		return err
	}
	if _, err = tx.NamedExecContext(ctx, insertSQL, toRow(s)); err != nil {
		return err
	}
	return tx.Commit()
}
