package location

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Register the postgres driver.
	_ "github.com/lib/pq"
	// Register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

// Dialect names a supported SQL driver.
type Dialect string

const (
	// DialectPostgres uses github.com/lib/pq.
	DialectPostgres Dialect = "postgres"
	// DialectSQLite uses github.com/mattn/go-sqlite3.
	DialectSQLite Dialect = "sqlite3"
)

var errUnknownDialect = errors.New("unknown SQL dialect")

const (
	insertPositionQuery = `INSERT INTO vehicle_positions
	(session_id, vehicle_id, latitude, longitude, accuracy, speed, heading, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, recorded_at) DO NOTHING`

	upsertLatestQuery = `INSERT INTO vehicle_latest
	(vehicle_id, latitude, longitude, accuracy, speed, heading, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (vehicle_id) DO UPDATE SET
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	accuracy = excluded.accuracy,
	speed = excluded.speed,
	heading = excluded.heading,
	recorded_at = excluded.recorded_at
WHERE excluded.recorded_at > vehicle_latest.recorded_at`

	insertSessionQuery = `INSERT INTO tracking_sessions
	(id, vehicle_id, driver_id, trip_type, default_radius_meters, targets, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

	completeSessionQuery = `UPDATE tracking_sessions SET completed_at = $1
WHERE id = $2 AND completed_at IS NULL`

	selectLatestQuery = `SELECT latitude, longitude, accuracy, speed, heading, recorded_at
FROM vehicle_latest WHERE vehicle_id = $1`

	selectTrailQuery = `SELECT latitude, longitude, accuracy, speed, heading, recorded_at
FROM vehicle_positions WHERE session_id = $1 ORDER BY recorded_at ASC`
)

// schema holds the idempotent DDL of each dialect.
//
//nolint:gochecknoglobals // Static DDL table.
var schema = map[Dialect][]string{
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS vehicle_positions (
	session_id TEXT NOT NULL,
	vehicle_id TEXT NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
	speed DOUBLE PRECISION NOT NULL DEFAULT 0,
	heading DOUBLE PRECISION NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, recorded_at)
)`,
		`CREATE INDEX IF NOT EXISTS vehicle_positions_vehicle_idx ON vehicle_positions (vehicle_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS vehicle_latest (
	vehicle_id TEXT PRIMARY KEY,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
	speed DOUBLE PRECISION NOT NULL DEFAULT 0,
	heading DOUBLE PRECISION NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS tracking_sessions (
	id TEXT PRIMARY KEY,
	vehicle_id TEXT NOT NULL,
	driver_id TEXT NOT NULL,
	trip_type TEXT NOT NULL,
	default_radius_meters DOUBLE PRECISION NOT NULL,
	targets TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
)`,
	},
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS vehicle_positions (
	session_id TEXT NOT NULL,
	vehicle_id TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	accuracy REAL NOT NULL DEFAULT 0,
	speed REAL NOT NULL DEFAULT 0,
	heading REAL NOT NULL DEFAULT 0,
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, recorded_at)
)`,
		`CREATE INDEX IF NOT EXISTS vehicle_positions_vehicle_idx ON vehicle_positions (vehicle_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS vehicle_latest (
	vehicle_id TEXT PRIMARY KEY,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	accuracy REAL NOT NULL DEFAULT 0,
	speed REAL NOT NULL DEFAULT 0,
	heading REAL NOT NULL DEFAULT 0,
	recorded_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS tracking_sessions (
	id TEXT PRIMARY KEY,
	vehicle_id TEXT NOT NULL,
	driver_id TEXT NOT NULL,
	trip_type TEXT NOT NULL,
	default_radius_meters REAL NOT NULL,
	targets TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
)`,
	},
}

// SQLStore persists positions in Postgres or SQLite.
// Timestamps are written in UTC so both engines compare them consistently.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens and pings a database for the dialect.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if _, ok := schema[dialect]; !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownDialect, dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	return NewSQLStore(db, dialect), nil
}

// NewSQLStore wraps an existing database handle.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
	}
}

// Migrate creates the tables when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements, ok := schema[s.dialect]
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownDialect, s.dialect)
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect, err)
		}
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// AppendPosition inserts the fix unless the session already has one at that timestamp.
func (s *SQLStore) AppendPosition(ctx context.Context, vehicleID, sessionID string, p tracking.Position) error {
	_, err := s.db.ExecContext(ctx, insertPositionQuery,
		sessionID, vehicleID, p.Latitude, p.Longitude, p.Accuracy, p.Speed, p.Heading, p.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: append position: %w", ErrStoreWriteFailed, err)
	}

	return nil
}

// SetLatest upserts the vehicle's newest fix; older fixes leave the row untouched.
func (s *SQLStore) SetLatest(ctx context.Context, vehicleID string, p tracking.Position) error {
	_, err := s.db.ExecContext(ctx, upsertLatestQuery,
		vehicleID, p.Latitude, p.Longitude, p.Accuracy, p.Speed, p.Heading, p.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: set latest: %w", ErrStoreWriteFailed, err)
	}

	return nil
}

// RecordSessionStart inserts the session row once.
func (s *SQLStore) RecordSessionStart(ctx context.Context, session *tracking.Session) error {
	if session == nil {
		return fmt.Errorf("%w: session is required", ErrStoreWriteFailed)
	}

	targets, err := json.Marshal(session.Targets)
	if err != nil {
		return fmt.Errorf("%w: encode targets: %w", ErrStoreWriteFailed, err)
	}

	_, err = s.db.ExecContext(ctx, insertSessionQuery,
		session.ID,
		session.VehicleID,
		session.DriverID,
		string(session.TripType),
		session.DefaultRadiusMeters,
		string(targets),
		session.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: record session start: %w", ErrStoreWriteFailed, err)
	}

	return nil
}

// RecordSessionComplete stamps completed_at if it is still empty.
func (s *SQLStore) RecordSessionComplete(ctx context.Context, sessionID string, completedAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, completeSessionQuery, completedAt.UTC(), sessionID); err != nil {
		return fmt.Errorf("%w: record session complete: %w", ErrStoreWriteFailed, err)
	}

	return nil
}

// Latest returns the stored newest fix of the vehicle.
func (s *SQLStore) Latest(ctx context.Context, vehicleID string) (tracking.Position, error) {
	var p tracking.Position

	err := s.db.QueryRowContext(ctx, selectLatestQuery, vehicleID).
		Scan(&p.Latitude, &p.Longitude, &p.Accuracy, &p.Speed, &p.Heading, &p.Timestamp)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return tracking.Position{}, ErrNotFound
	case err != nil:
		return tracking.Position{}, fmt.Errorf("select latest: %w", err)
	}

	p.Timestamp = p.Timestamp.UTC()

	return p, nil
}

// Trail returns the session fixes ordered by timestamp.
func (s *SQLStore) Trail(ctx context.Context, sessionID string) ([]tracking.Position, error) {
	rows, err := s.db.QueryContext(ctx, selectTrailQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select trail: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var trail []tracking.Position

	for rows.Next() {
		var p tracking.Position
		if err := rows.Scan(&p.Latitude, &p.Longitude, &p.Accuracy, &p.Speed, &p.Heading, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trail: %w", err)
		}

		p.Timestamp = p.Timestamp.UTC()
		trail = append(trail, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trail: %w", err)
	}

	return trail, nil
}
