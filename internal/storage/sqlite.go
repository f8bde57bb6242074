package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gamebridge/internal/errs"
	logx "gamebridge/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required when storage.driver=sqlite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Debug("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, errs.CorruptState(err, "registry database "+path+" could not be migrated")
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Load(ctx context.Context) (Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, category, channel_id FROM registrations`)
	if err != nil {
		return nil, errs.CorruptState(err, "registry table could not be read")
	}
	defer rows.Close()

	doc := Document{}
	for rows.Next() {
		var g, c, ch string
		if err := rows.Scan(&g, &c, &ch); err != nil {
			return nil, errs.CorruptState(err, "registry row could not be decoded")
		}
		if g == "" || c == "" || ch == "" {
			return nil, errs.CorruptState(nil, "registry row has empty fields")
		}
		if doc[g] == nil {
			doc[g] = map[string]string{}
		}
		doc[g][c] = ch
	}
	if err := rows.Err(); err != nil {
		return nil, errs.CorruptState(err, "registry table could not be read")
	}
	return doc, nil
}

// Save replaces every row in one transaction, so Load sees old or new state only.
func (s *sqliteStore) Save(ctx context.Context, doc Document) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM registrations`); err != nil {
		return fmt.Errorf("storage: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO registrations(guild_id, category, channel_id, updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for g, cats := range doc {
		for c, ch := range cats {
			if _, err = stmt.ExecContext(ctx, g, c, ch, now); err != nil {
				return fmt.Errorf("storage: insert %s/%s: %w", g, c, err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	s.log.Debug("registry saved", logx.Int("entries", doc.Len()))
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
