package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/openfroyo/mpvbridge/pkg/telemetry"
	"github.com/rs/zerolog"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02 15:04:05.000000000"

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

// Journal implements Store on SQLite
type Journal struct {
	db     *sql.DB
	cfg    Config
	logger zerolog.Logger
}

// Config holds journal configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// WriteTimeout bounds each write made by the bus subscriber.
	WriteTimeout time.Duration

	Logger zerolog.Logger
}

var _ Store = (*Journal)(nil)

// NewJournal creates a new journal instance
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &Journal{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "journal").Logger(),
	}, nil
}

// Init opens the database and enables WAL mode.
func (j *Journal) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", j.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(j.cfg.MaxOpenConns)
	db.SetMaxIdleConns(j.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(j.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	j.db = db
	return nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (j *Journal) Migrate(_ context.Context) error {
	if j.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordSessionStarted opens a new session row for key session.
func (j *Journal) RecordSessionStarted(ctx context.Context, session, channel string, at time.Time) (*Session, error) {
	if at.IsZero() {
		at = time.Now()
	}

	s := &Session{
		ID:        uuid.NewString(),
		Session:   session,
		Channel:   channel,
		Status:    SessionStatusActive,
		StartedAt: at.UTC(),
		Metadata:  "{}",
	}

	query := `
		INSERT INTO sessions (id, session_key, channel, status, started_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		s.ID,
		s.Session,
		s.Channel,
		string(s.Status),
		formatTime(s.StartedAt),
		s.Metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record session start: %w", err)
	}

	return s, nil
}

// RecordSessionEnded closes the newest active row for key session.
func (j *Journal) RecordSessionEnded(ctx context.Context, session, reason string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}

	query := `
		UPDATE sessions
		SET status = ?, end_reason = ?, ended_at = ?
		WHERE id = (
			SELECT id FROM sessions
			WHERE session_key = ? AND status = ?
			ORDER BY started_at DESC, rowid DESC
			LIMIT 1
		)
	`

	result, err := j.db.ExecContext(ctx, query,
		string(SessionStatusEnded),
		reason,
		formatTime(at),
		session,
		string(SessionStatusActive),
	)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("active session %s: %w", session, ErrNotFound)
	}

	return nil
}

const sessionColumns = `
	s.id, s.session_key, s.channel, s.status, s.end_reason, s.started_at, s.ended_at, s.metadata,
	COALESCE(c.event_count, 0)
`

// GetSession retrieves a session row by ID
func (j *Journal) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions s
		LEFT JOIN session_event_counts c ON c.session_id = s.id
		WHERE s.id = ?
	`

	s, err := scanSession(j.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s, nil
}

// ListSessions lists sessions, newest first, optionally filtered by status.
// A limit of zero or less returns every row.
func (j *Journal) ListSessions(ctx context.Context, status *SessionStatus, limit, offset int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions s
		LEFT JOIN session_event_counts c ON c.session_id = s.id
		WHERE (? IS NULL OR s.status = ?)
		ORDER BY s.started_at DESC, s.rowid DESC
		LIMIT ? OFFSET ?
	`

	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}

	rows, err := j.db.QueryContext(ctx, query, statusArg, statusArg, sqlLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// AppendEvent appends an event. Without a SessionID the event is linked to
// the active row of its session key, if any.
func (j *Journal) AppendEvent(ctx context.Context, event *Event) error {
	if event.Session == "" {
		return fmt.Errorf("event session is required")
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()

	if event.SessionID == nil {
		id, err := j.activeSessionID(ctx, event.Session)
		if err != nil {
			return err
		}
		event.SessionID = id
	}

	query := `
		INSERT INTO events (event_id, session_id, session_key, type, name, level, message, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := j.db.ExecContext(ctx, query,
		event.EventID,
		event.SessionID,
		event.Session,
		event.Type,
		event.Name,
		string(event.Level),
		event.Message,
		event.Payload,
		formatTime(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// ListEvents lists events in append order with optional filters.
// A limit of zero or less returns every row.
func (j *Journal) ListEvents(ctx context.Context, session *string, eventType *string, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, event_id, session_id, session_key, type, name, level, message, payload, timestamp
		FROM events
		WHERE (? IS NULL OR session_key = ?)
		  AND (? IS NULL OR type = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := j.db.QueryContext(ctx, query, session, session, eventType, eventType, sqlLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		var level, ts string
		err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.SessionID,
			&event.Session,
			&event.Type,
			&event.Name,
			&level,
			&event.Message,
			&event.Payload,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Level = EventLevel(level)
		if event.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// PruneEvents deletes events older than before
func (j *Journal) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM events WHERE timestamp < ?`

	result, err := j.db.ExecContext(ctx, query, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// Subscriber returns a bus subscriber that journals every event. Session
// started and ended events also open and close session rows. Write errors
// are logged; the bus never sees them.
func (j *Journal) Subscriber() telemetry.EventSubscriber {
	return func(ev telemetry.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), j.cfg.WriteTimeout)
		defer cancel()

		if ev.Type == telemetry.EventTypeSessionStarted {
			if _, err := j.RecordSessionStarted(ctx, ev.Session, ev.Channel, ev.Timestamp); err != nil {
				j.logger.Error().Err(err).Str("session", ev.Session).Msg("Failed to journal session start")
			}
		}

		if err := j.AppendEvent(ctx, eventFromBus(ev)); err != nil {
			j.logger.Error().Err(err).
				Str("session", ev.Session).
				Str("type", ev.Type).
				Msg("Failed to journal event")
		}

		if ev.Type == telemetry.EventTypeSessionEnded {
			err := j.RecordSessionEnded(ctx, ev.Session, ev.Reason, ev.Timestamp)
			switch {
			case errors.Is(err, ErrNotFound):
				j.logger.Debug().Str("session", ev.Session).Msg("Session ended without a journaled start")
			case err != nil:
				j.logger.Error().Err(err).Str("session", ev.Session).Msg("Failed to journal session end")
			}
		}
	}
}

// HealthCheck verifies the database connection is healthy
func (j *Journal) HealthCheck(ctx context.Context) error {
	if j.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return j.db.PingContext(ctx)
}

func (j *Journal) activeSessionID(ctx context.Context, session string) (*string, error) {
	query := `
		SELECT id FROM sessions
		WHERE session_key = ? AND status = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`

	var id string
	err := j.db.QueryRowContext(ctx, query, session, string(SessionStatusActive)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}

	return &id, nil
}

func eventFromBus(ev telemetry.Event) *Event {
	event := &Event{
		Session:   ev.Session,
		Type:      ev.Type,
		Level:     EventLevel(ev.Level),
		Timestamp: ev.Timestamp,
	}
	if ev.ID != "" {
		event.EventID = &ev.ID
	}
	if ev.Name != "" {
		event.Name = &ev.Name
	}
	if ev.Message != "" {
		event.Message = &ev.Message
	}
	if len(ev.Payload) > 0 {
		payload := string(ev.Payload)
		event.Payload = &payload
	}
	switch event.Level {
	case EventLevelDebug, EventLevelInfo, EventLevelWarning, EventLevelError:
	default:
		event.Level = EventLevelInfo
	}
	return event
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	s := &Session{}
	var status, started string
	var ended sql.NullString
	err := row.Scan(
		&s.ID,
		&s.Session,
		&s.Channel,
		&status,
		&s.EndReason,
		&started,
		&ended,
		&s.Metadata,
		&s.EventCount,
	)
	if err != nil {
		return nil, err
	}

	s.Status = SessionStatus(status)
	if s.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return nil, err
		}
		s.EndedAt = &t
	}

	return s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
