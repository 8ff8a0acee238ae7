package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

const (
	// DefaultKeyPrefix namespaces every key written by RedisStore.
	DefaultKeyPrefix = "tracker"
	// DefaultRedisTTL bounds how long trails and latest fixes are kept.
	DefaultRedisTTL = 24 * time.Hour
)

// setLatestScript writes the hash only when the stored timestamp is older.
// Rewriting the stored fix only refreshes its expiry.
//
//nolint:gochecknoglobals // Scripts are cached by SHA and safe for concurrent use.
var setLatestScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'ts')
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
if not current or tonumber(current) < tonumber(ARGV[1]) then
	redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'lat', ARGV[2], 'lng', ARGV[3], 'acc', ARGV[4], 'speed', ARGV[5], 'heading', ARGV[6])
end
if tonumber(ARGV[7]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[7])
end
return 1
`)

// RedisStore keeps the latest fix per vehicle, session trails and session metadata in Redis.
//
// Keys:
//
//	<prefix>:latest:<vehicle>   hash, timestamp in unix microseconds
//	<prefix>:trail:<session>    sorted set scored by timestamp
//	<prefix>:session:<session>  hash
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets the expiry of written keys. Zero keeps keys forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// OpenRedis parses a redis:// URL, connects and pings the server.
func OpenRedis(ctx context.Context, url string, opts ...RedisOption) (*RedisStore, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisStore(client, opts...), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    DefaultRedisTTL,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// AppendPosition adds the fix to the session trail. Re-adding the same fix only rewrites its score.
func (s *RedisStore) AppendPosition(ctx context.Context, vehicleID, sessionID string, p tracking.Position) error {
	member, err := json.Marshal(trailEntry{VehicleID: vehicleID, Position: p})
	if err != nil {
		return fmt.Errorf("%w: encode position: %w", ErrStoreWriteFailed, err)
	}

	key := s.key("trail", sessionID)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(p.Timestamp.UnixMicro()), Member: member})

		if s.ttl > 0 {
			pipe.PExpire(ctx, key, s.ttl)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: append position: %w", ErrStoreWriteFailed, err)
	}

	return nil
}

// SetLatest runs a compare-and-set so that concurrent writers keep the newest fix.
func (s *RedisStore) SetLatest(ctx context.Context, vehicleID string, p tracking.Position) error {
	err := setLatestScript.Run(ctx, s.client, []string{s.key("latest", vehicleID)},
		p.Timestamp.UnixMicro(),
		formatFloat(p.Latitude),
		formatFloat(p.Longitude),
		formatFloat(p.Accuracy),
		formatFloat(p.Speed),
		formatFloat(p.Heading),
		s.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: set latest: %w", ErrStoreWriteFailed, err)
	}

	return nil
}

// RecordSessionStart writes the session hash.
func (s *RedisStore) RecordSessionStart(ctx context.Context, session *tracking.Session) error {
	if session == nil {
		return fmt.Errorf("%w: session is required", ErrStoreWriteFailed)
	}

	targets, err := json.Marshal(session.Targets)
	if err != nil {
		return fmt.Errorf("%w: encode targets: %w", ErrStoreWriteFailed, err)
	}

	key := s.key("session", session.ID)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"vehicle_id", session.VehicleID,
			"driver_id", session.DriverID,
			"trip_type", string(session.TripType),
			"default_radius_meters", formatFloat(session.DefaultRadiusMeters),
			"targets", string(targets),
			"started_at", session.StartedAt.UTC().Format(time.RFC3339Nano),
		)

		if s.ttl > 0 {
			pipe.PExpire(ctx, key, s.ttl)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: record session start: %w", ErrStoreWriteFailed, err)
	}

	return nil
}

// RecordSessionComplete sets completed_at once.
func (s *RedisStore) RecordSessionComplete(ctx context.Context, sessionID string, completedAt time.Time) error {
	err := s.client.HSetNX(ctx, s.key("session", sessionID), "completed_at", completedAt.UTC().Format(time.RFC3339Nano)).Err()
	if err != nil {
		return fmt.Errorf("%w: record session complete: %w", ErrStoreWriteFailed, err)
	}

	return nil
}

// Latest reads the vehicle's newest fix.
func (s *RedisStore) Latest(ctx context.Context, vehicleID string) (tracking.Position, error) {
	fields, err := s.client.HGetAll(ctx, s.key("latest", vehicleID)).Result()
	if err != nil {
		return tracking.Position{}, fmt.Errorf("get latest: %w", err)
	}

	if len(fields) == 0 {
		return tracking.Position{}, ErrNotFound
	}

	micros, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return tracking.Position{}, fmt.Errorf("parse latest timestamp: %w", err)
	}

	p := tracking.Position{Timestamp: time.UnixMicro(micros).UTC()}

	for field, dst := range map[string]*float64{
		"lat":     &p.Latitude,
		"lng":     &p.Longitude,
		"acc":     &p.Accuracy,
		"speed":   &p.Speed,
		"heading": &p.Heading,
	} {
		if *dst, err = strconv.ParseFloat(fields[field], 64); err != nil {
			return tracking.Position{}, fmt.Errorf("parse latest %s: %w", field, err)
		}
	}

	return p, nil
}

// Trail returns the session fixes ordered by timestamp.
func (s *RedisStore) Trail(ctx context.Context, sessionID string) ([]tracking.Position, error) {
	members, err := s.client.ZRange(ctx, s.key("trail", sessionID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get trail: %w", err)
	}

	trail := make([]tracking.Position, 0, len(members))

	for _, member := range members {
		var entry trailEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			return nil, fmt.Errorf("decode trail entry: %w", err)
		}

		entry.Position.Timestamp = entry.Position.Timestamp.UTC()
		trail = append(trail, entry.Position)
	}

	return trail, nil
}

func (s *RedisStore) key(kind, id string) string {
	return s.prefix + ":" + kind + ":" + id
}

// trailEntry is the JSON member stored in a trail sorted set.
type trailEntry struct {
	VehicleID string            `json:"vehicle_id"`
	Position  tracking.Position `json:"position"`
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
