package boxerdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"marketmelee.ai/internal/persistence/store"
	"marketmelee.ai/internal/sim/boxer"
	"marketmelee.ai/internal/sim/tuning"
)

const schemaVersion = "1"

// SQLite is the durable store.Backend. A record and its history row are
// always written in one transaction.
type SQLite struct {
	db   *sql.DB
	once sync.Once
}

var _ store.Backend = (*SQLite)(nil)

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// FULL: this is the system of record, not a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			digest TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			first_seen TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS boxers (
			token TEXT PRIMARY KEY,
			health INTEGER NOT NULL,
			attack_power INTEGER NOT NULL,
			defense_power INTEGER NOT NULL,
			last_move TEXT NOT NULL,
			revision INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			token TEXT NOT NULL,
			revision INTEGER NOT NULL,
			transition_id TEXT NOT NULL,
			price_delta REAL NOT NULL,
			volume REAL NOT NULL,
			volatility REAL NOT NULL,
			attack_power INTEGER NOT NULL,
			defense_power INTEGER NOT NULL,
			move TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (token, revision)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_id ON transitions(transition_id);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

// RecordTuning stores the engine parameters a process ran with, keyed by digest.
func (s *SQLite) RecordTuning(ctx context.Context, tune tuning.Tuning) error {
	b, err := json.Marshal(tune.Engine)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tuning(digest,json,first_seen) VALUES(?,?,?)`,
		tune.Engine.Digest(), string(b), now)
	return err
}

func (s *SQLite) Insert(ctx context.Context, rec store.Record) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO boxers(token,health,attack_power,defense_power,last_move,revision,updated_at)
		 VALUES(?,?,?,?,?,?,?) ON CONFLICT(token) DO NOTHING`,
		rec.State.Token,
		int(rec.State.Health),
		int(rec.State.AttackPower),
		int(rec.State.DefensePower),
		rec.State.LastMove.String(),
		int64(rec.Revision),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, token string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token,health,attack_power,defense_power,last_move,revision,updated_at FROM boxers WHERE token=?`, token)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	return rec, err
}

func (s *SQLite) Replace(ctx context.Context, prevRevision uint64, next store.Record, tr store.Transition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE boxers SET health=?,attack_power=?,defense_power=?,last_move=?,revision=?,updated_at=?
		 WHERE token=? AND revision=?`,
		int(next.State.Health),
		int(next.State.AttackPower),
		int(next.State.DefensePower),
		next.State.LastMove.String(),
		int64(next.Revision),
		formatTime(next.UpdatedAt),
		next.State.Token,
		int64(prevRevision),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM boxers WHERE token=?`, next.State.Token).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return store.ErrStale
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transitions(token,revision,transition_id,price_delta,volume,volatility,attack_power,defense_power,move,recorded_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		next.State.Token,
		int64(next.Revision),
		tr.ID,
		tr.Signal.PriceDelta,
		tr.Signal.Volume,
		tr.Signal.Volatility,
		int(next.State.AttackPower),
		int(next.State.DefensePower),
		next.State.LastMove.String(),
		formatTime(tr.At),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) List(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token,health,attack_power,defense_power,last_move,revision,updated_at FROM boxers ORDER BY token`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) History(ctx context.Context, token string, limit int) ([]store.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT transition_id,revision,price_delta,volume,volatility,attack_power,defense_power,move,recorded_at
		 FROM transitions WHERE token=? ORDER BY revision DESC LIMIT ?`, token, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.HistoryEntry
	for rows.Next() {
		var (
			e      store.HistoryEntry
			rev    int64
			atk    int
			def    int
			move   string
			atText string
		)
		if err := rows.Scan(&e.TransitionID, &rev, &e.Signal.PriceDelta, &e.Signal.Volume, &e.Signal.Volatility, &atk, &def, &move, &atText); err != nil {
			return nil, err
		}
		m, err := boxer.ParseMove(move)
		if err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339Nano, atText)
		if err != nil {
			return nil, err
		}
		e.Revision = uint64(rev)
		e.AttackPower = uint8(atk)
		e.DefensePower = uint8(def)
		e.Move = m
		e.RecordedAt = at
		out = append(out, e)
	}
	return out, rows.Err()
}

// Import writes recs in one transaction, and only if no boxer exists yet.
// History is not imported.
func (s *SQLite) Import(ctx context.Context, recs []store.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM boxers`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return store.ErrNotEmpty
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO boxers(token,health,attack_power,defense_power,last_move,revision,updated_at)
		 VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.State.Token,
			int(rec.State.Health),
			int(rec.State.AttackPower),
			int(rec.State.DefensePower),
			rec.State.LastMove.String(),
			int64(rec.Revision),
			formatTime(rec.UpdatedAt),
		); err != nil {
			return fmt.Errorf("import %s: %w", rec.State.Token, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (store.Record, error) {
	var (
		rec    store.Record
		health int
		atk    int
		def    int
		move   string
		rev    int64
		atText string
	)
	if err := sc.Scan(&rec.State.Token, &health, &atk, &def, &move, &rev, &atText); err != nil {
		return store.Record{}, err
	}
	m, err := boxer.ParseMove(move)
	if err != nil {
		return store.Record{}, fmt.Errorf("boxer %s: %w", rec.State.Token, err)
	}
	at, err := time.Parse(time.RFC3339Nano, atText)
	if err != nil {
		return store.Record{}, fmt.Errorf("boxer %s: %w", rec.State.Token, err)
	}
	rec.State.Health = uint8(health)
	rec.State.AttackPower = uint8(atk)
	rec.State.DefensePower = uint8(def)
	rec.State.LastMove = m
	rec.Revision = uint64(rev)
	rec.UpdatedAt = at
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
