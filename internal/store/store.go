package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure Go driver, registers as "sqlite"
)

// walJournalSizeLimit caps the WAL file at 64 MiB before a checkpoint is
// forced, bounding disk usage during long sync runs.
const walJournalSizeLimit = 67108864

// schemaMigratedAtKey is the sync_meta row Open stamps with the wall-clock
// time of the most recent schema migration run, so `orchard status` and
// support bundles can tell when the on-disk schema last changed without
// reaching into goose's own bookkeeping table.
const schemaMigratedAtKey = "schema_migrated_at"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the persistent, transactional record of everything Orchard knows
// about the projected tree: object metadata, remote shadows, cache and chunk
// presence, and the pending action queue. It is backed by SQLite in WAL mode
// through the pure Go modernc.org/sqlite driver (no CGO).
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	objectStmts objectStatements
	shadowStmts shadowStatements
	cacheStmts  cacheStatements
	chunkStmts  chunkStatements
	actionStmts actionStatements
	metaStmts   metaStatements
}

type objectStatements struct {
	get, getByPath, getChildByName, getByCloudID, upsert, listChildren, markDirty, markDeleted, delete *sql.Stmt
}

type shadowStatements struct {
	get, upsert, delete *sql.Stmt
}

type cacheStatements struct {
	get, upsert, delete, listEvictionCandidates, listPinned *sql.Stmt
}

type chunkStatements struct {
	markPresent, listPresent, deleteAll, deleteOne *sql.Stmt
}

type actionStatements struct {
	insert, getByTarget, claimNext, complete, fail, cancel, countPending *sql.Stmt
}

type metaStatements struct {
	get, set *sql.Stmt
}

// Open creates a new Store backed by the SQLite database at dbPath, applying
// pragmas and pending migrations and preparing all repeated statements. Use
// ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening state database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	results, err := applySchemaMigrations(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareAll(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	if len(results) > 0 {
		stamp := time.Now().UTC().Format(time.RFC3339)
		if err := s.SetMeta(ctx, schemaMigratedAtKey, stamp); err != nil {
			logger.Warn("recording schema migration timestamp failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("state database ready", slog.String("path", dbPath))

	return s, nil
}

// applySchemaMigrations brings db up to the latest embedded schema version
// using the goose v3 Provider API (no global registry, context-aware). It
// returns the individual migration results so Open can log and record them
// once the rest of the Store is initialized; the meta table used for that
// record isn't queryable until prepareAll has run, so this function itself
// stays silent.
func applySchemaMigrations(ctx context.Context, db *sql.DB) ([]*goose.MigrationResult, error) {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return nil, fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}

	return results, nil
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("store: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", slog.String("pragma", p.desc))
	}

	return nil
}

// stmtDef pairs a SQL string with the prepared statement pointer it fills.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

func (s *Store) prepareAll(ctx context.Context) error {
	groups := [][]stmtDef{
		s.objectStmtDefs(),
		s.shadowStmtDefs(),
		s.cacheStmtDefs(),
		s.chunkStmtDefs(),
		s.actionStmtDefs(),
		s.metaStmtDefs(),
	}

	for _, g := range groups {
		if err := prepareAll(ctx, s.db, g); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) metaStmtDefs() []stmtDef {
	return []stmtDef{
		{&s.metaStmts.get, sqlMetaGet, "metaGet"},
		{&s.metaStmts.set, sqlMetaSet, "metaSet"},
	}
}

const (
	sqlMetaGet = `SELECT value FROM sync_meta WHERE key = ?`
	sqlMetaSet = `INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
)

// GetMeta reads a free-form key from the sync_meta table (used for the
// cloud change-delta continuation token). Returns "" if absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string

	err := s.metaStmts.get.QueryRowContext(ctx, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("store: get meta %q: %w", key, err)
	}

	return value, nil
}

// SetMeta upserts a free-form key in the sync_meta table.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	if _, err := s.metaStmts.set.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("store: set meta %q: %w", key, err)
	}

	return nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which is re-raised after rollback).
// Most multi-statement Store operations (coalescing enqueue, conflict
// recording) need this rather than the auto-commit prepared statements.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}

	return nil
}

// Checkpoint forces a WAL checkpoint, consolidating the WAL file into the
// main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("store: wal checkpoint: %w", err)
	}

	return nil
}

// Close closes all prepared statements and the underlying database handle.
func (s *Store) Close() error {
	s.logger.Info("closing state database")

	var errs []string

	for _, stmt := range s.allStatements() {
		if stmt == nil {
			continue
		}

		if err := stmt.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("store: close: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (s *Store) allStatements() []*sql.Stmt {
	return []*sql.Stmt{
		s.objectStmts.get, s.objectStmts.getByPath, s.objectStmts.getChildByName,
		s.objectStmts.getByCloudID,
		s.objectStmts.upsert, s.objectStmts.listChildren, s.objectStmts.markDirty,
		s.objectStmts.markDeleted, s.objectStmts.delete,
		s.shadowStmts.get, s.shadowStmts.upsert, s.shadowStmts.delete,
		s.cacheStmts.get, s.cacheStmts.upsert, s.cacheStmts.delete,
		s.cacheStmts.listEvictionCandidates, s.cacheStmts.listPinned,
		s.chunkStmts.markPresent, s.chunkStmts.listPresent,
		s.chunkStmts.deleteAll, s.chunkStmts.deleteOne,
		s.actionStmts.insert, s.actionStmts.getByTarget, s.actionStmts.claimNext,
		s.actionStmts.complete, s.actionStmts.fail, s.actionStmts.cancel,
		s.actionStmts.countPending,
		s.metaStmts.get, s.metaStmts.set,
	}
}

// DB exposes the underlying *sql.DB for callers that need direct access,
// such as tests that inspect rows no Store method returns.
func (s *Store) DB() *sql.DB {
	return s.db
}
