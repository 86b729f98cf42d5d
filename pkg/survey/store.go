// Package survey persists walked sessions so a heatmap can be replayed later.
package survey

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("survey: session not found")

// Session is one recorded walk.
type Session struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Estimator string    `json:"estimator"`
	SSID      string    `json:"ssid"`
	StartedAt time.Time `json:"started_at"`
	Points    int       `json:"points"`
}

// Store is a sqlite-backed session log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "survey.store")

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open survey db: %w", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("survey store ready", "path", path)
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = migrateLogger{s.logger}
	return m, nil
}

// migrateUp applies every pending migration. The migrate instance is not
// closed because that would close the shared *sql.DB.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct{ l *slog.Logger }

func (m migrateLogger) Printf(format string, v ...any) {
	m.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (m migrateLogger) Verbose() bool { return false }

// StartSession creates a new session and returns it.
func (s *Store) StartSession(ctx context.Context, mode, estimator, ssid string) (Session, error) {
	sess := Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		Estimator: estimator,
		SSID:      ssid,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, mode, estimator, ssid, started_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Mode, sess.Estimator, sess.SSID, sess.StartedAt.UnixNano())
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	s.logger.Info("session started", "session", sess.ID, "mode", mode, "estimator", estimator)
	return sess, nil
}

// Record stores one point.
func (s *Store) Record(ctx context.Context, sessionID string, p heatmap.SignalPoint) error {
	return s.RecordBatch(ctx, sessionID, []heatmap.SignalPoint{p})
}

// RecordBatch stores points in one transaction, preserving order.
func (s *Store) RecordBatch(ctx context.Context, sessionID string, points []heatmap.SignalPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (session_id, x, y, signal_dbm, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, sessionID, p.X, p.Y, p.SignalDBm, now); err != nil {
			return fmt.Errorf("insert point: %w", err)
		}
	}
	return tx.Commit()
}

// Points returns a session's points in recording order.
func (s *Store) Points(ctx context.Context, sessionID string) ([]heatmap.SignalPoint, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT x, y, signal_dbm FROM points WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var points []heatmap.SignalPoint
	for rows.Next() {
		var p heatmap.SignalPoint
		if err := rows.Scan(&p.X, &p.Y, &p.SignalDBm); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

const sessionColumns = `s.id, s.mode, s.estimator, s.ssid, s.started_at,
	(SELECT COUNT(*) FROM points p WHERE p.session_id = s.id)`

// Session returns one session with its point count.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// Sessions lists sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions s ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its points.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var started int64
	if err := row.Scan(&sess.ID, &sess.Mode, &sess.Estimator, &sess.SSID, &started, &sess.Points); err != nil {
		return Session{}, err
	}
	sess.StartedAt = time.Unix(0, started).UTC()
	return sess, nil
}
