//go:build sqlite
// +build sqlite

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
	"sync/atomic"
	"time"

	"countdown/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
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

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutTarget(ctx context.Context, r TargetRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("target name is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets(name, fingerprint, target_ms, resolved_ms, run_id) VALUES(?,?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET
		   fingerprint=excluded.fingerprint,
		   target_ms=excluded.target_ms,
		   resolved_ms=excluded.resolved_ms,
		   run_id=excluded.run_id`,
		r.Name, r.Fingerprint, r.Target.UnixMilli(), r.ResolvedAt.UnixMilli(), nullStr(r.RunID),
	)
	return err
}

func (s *sqliteStore) GetTarget(ctx context.Context, name string) (TargetRecord, bool, error) {
	if s == nil || s.db == nil {
		return TargetRecord{}, false, ErrDisabled
	}
	var (
		r                    TargetRecord
		targetMS, resolvedMS int64
		runID                sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, fingerprint, target_ms, resolved_ms, run_id FROM targets WHERE name = ?`, name,
	).Scan(&r.Name, &r.Fingerprint, &targetMS, &resolvedMS, &runID)
	if errors.Is(err, sql.ErrNoRows) {
		return TargetRecord{}, false, nil
	}
	if err != nil {
		return TargetRecord{}, false, err
	}
	r.Target = time.UnixMilli(targetMS)
	r.ResolvedAt = time.UnixMilli(resolvedMS)
	r.RunID = runID.String
	return r, true, nil
}

func (s *sqliteStore) DeleteTarget(ctx context.Context, name string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE name = ?`, name)
	return err
}

func (s *sqliteStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var targetMS any
	if !e.Target.IsZero() {
		targetMS = e.Target.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history(at, name, run_id, event, target_ms, initial_ms, remaining_ms, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Name, nullStr(e.RunID), e.Event, targetMS,
		e.InitialMS, e.RemainingMS, nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli(),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneExpired(pctx); perr != nil {
			s.log.Debug("dedup prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, time.Now().UnixMilli())
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
