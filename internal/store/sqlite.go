package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"fableturn/pkg/entity"
)

// SQLiteStore implements Store on a single-file SQLite database. Entities
// are stored as JSON blobs with expression indexes on type and current
// location, which keeps the schema stable while entity shapes evolve.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	savesDir string
	logger   *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	entity_id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_data JSON NOT NULL,
	last_modified TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_by_type
ON entities(entity_type);

CREATE INDEX IF NOT EXISTS idx_entities_by_location
ON entities(json_extract(entity_data, '$.state.current_location_id'));

CREATE TABLE IF NOT EXISTS event_log (
	event_id TEXT PRIMARY KEY,
	turn_number INTEGER NOT NULL,
	location_id TEXT,
	observer_id TEXT,
	action_type TEXT NOT NULL,
	event_data JSON NOT NULL,
	timestamp TEXT NOT NULL
);

-- Observer and location timelines back "what did X see by turn T" and
-- "what happened at L" queries; the retroactive causality check depends on
-- this ordering.
CREATE INDEX IF NOT EXISTS idx_observer_timeline
ON event_log(observer_id, turn_number DESC);

CREATE INDEX IF NOT EXISTS idx_location_timeline
ON event_log(location_id, turn_number DESC);

CREATE TABLE IF NOT EXISTS relationships (
	from_entity_id TEXT,
	to_entity_id TEXT,
	type TEXT,
	trust_level TEXT,
	status TEXT,
	tags JSON,
	history JSON,
	PRIMARY KEY (from_entity_id, to_entity_id)
);

CREATE INDEX IF NOT EXISTS idx_rel_from ON relationships(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_rel_to ON relationships(to_entity_id);

CREATE TABLE IF NOT EXISTS global_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteStore opens (creating if necessary) the world database at path.
// savesDir is where snapshot files live.
func NewSQLiteStore(ctx context.Context, path, savesDir string, logger *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Single-session, single-writer model: one connection serializes all
	// reads and writes.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, savesDir: savesDir, logger: logger}, nil
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Entity operations

func (s *SQLiteStore) CreateEntity(ctx context.Context, e *entity.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling entity %s: %w", e.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO entities (entity_id, entity_type, entity_data, last_modified)
		VALUES (?, ?, ?, ?)`,
		e.ID, string(e.Type), string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating entity %s: %w", e.ID, err)
	}
	s.logger.Debug("Created entity", "entity_id", e.ID, "entity_type", e.Type)
	return nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*entity.Entity, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_data FROM entities WHERE entity_id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading entity %s: %w", id, err)
	}
	return decodeEntity(id, data)
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, id string, e *entity.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling entity %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE entities SET entity_data = ?, last_modified = ? WHERE entity_id = ?`,
		string(data), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating entity %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating entity %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("updating entity %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM entities WHERE entity_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking entity %s: %w", id, err)
	}
	return true, nil
}

func (s *SQLiteStore) EntitiesInLocation(ctx context.Context, locationID string) ([]*entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, entity_data FROM entities
		WHERE json_extract(entity_data, '$.state.current_location_id') = ?`,
		locationID)
	if err != nil {
		return nil, fmt.Errorf("listing entities in %s: %w", locationID, err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *SQLiteStore) EntitiesByType(ctx context.Context, t entity.Type) ([]*entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, entity_data FROM entities WHERE entity_type = ?`, string(t))
	if err != nil {
		return nil, fmt.Errorf("listing entities of type %s: %w", t, err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *SQLiteStore) FindByName(ctx context.Context, name string) ([]*entity.Entity, error) {
	lower := strings.ToLower(name)
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, entity_data FROM entities
		WHERE LOWER(json_extract(entity_data, '$.name')) = ?
		   OR LOWER(json_extract(entity_data, '$.name.display')) = ?
		   OR LOWER(json_extract(entity_data, '$.name.first')) = ?`,
		lower, lower, lower)
	if err != nil {
		return nil, fmt.Errorf("finding entities named %q: %w", name, err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

func decodeEntity(id, data string) (*entity.Entity, error) {
	var e entity.Entity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("unmarshaling entity %s: %w", id, err)
	}
	return &e, nil
}

func scanEntities(rows *sql.Rows) ([]*entity.Entity, error) {
	var entities []*entity.Entity
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}
		e, err := decodeEntity(id, data)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// Global key-value state

func (s *SQLiteStore) SetGlobal(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO global_state (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("setting global %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) GetGlobal(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM global_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting global %s: %w", key, err)
	}
	return value, nil
}

// Event log

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *EventLogEntry) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e.EventData)
	if err != nil {
		return fmt.Errorf("marshaling event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_log (event_id, turn_number, location_id, observer_id, action_type, event_data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.TurnNumber, e.LocationID, e.ObserverID, e.ActionType,
		string(data), e.Timestamp.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

// RecentNarratives returns the last N narration texts, oldest first.
func (s *SQLiteStore) RecentNarratives(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT turn_number, json_extract(event_data, '$.narrative')
		FROM event_log
		WHERE action_type = 'NARRATION'
		ORDER BY turn_number DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching narratives: %w", err)
	}
	defer rows.Close()

	var narratives []string
	for rows.Next() {
		var turn int
		var text sql.NullString
		if err := rows.Scan(&turn, &text); err != nil {
			return nil, fmt.Errorf("scanning narrative row: %w", err)
		}
		if text.Valid && text.String != "" {
			narratives = append(narratives, text.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(narratives)-1; i < j; i, j = i+1, j-1 {
		narratives[i], narratives[j] = narratives[j], narratives[i]
	}
	return narratives, nil
}

// RecentObservations returns the most recent look/move events, newest
// first. This is the observation window for retroactive causality checks.
func (s *SQLiteStore) RecentObservations(ctx context.Context, limit int) ([]EventLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, turn_number, location_id, observer_id, action_type, event_data, timestamp
		FROM event_log
		WHERE action_type = 'look' OR action_type = 'move'
		ORDER BY turn_number DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching observations: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) EventsByObserver(ctx context.Context, observerID string, throughTurn int) ([]EventLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, turn_number, location_id, observer_id, action_type, event_data, timestamp
		FROM event_log
		WHERE observer_id = ? AND turn_number <= ?
		ORDER BY turn_number ASC`, observerID, throughTurn)
	if err != nil {
		return nil, fmt.Errorf("fetching events for observer %s: %w", observerID, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) EventsByLocation(ctx context.Context, locationID string) ([]EventLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, turn_number, location_id, observer_id, action_type, event_data, timestamp
		FROM event_log
		WHERE location_id = ?
		ORDER BY turn_number ASC`, locationID)
	if err != nil {
		return nil, fmt.Errorf("fetching events at %s: %w", locationID, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]EventLogEntry, error) {
	var events []EventLogEntry
	for rows.Next() {
		var e EventLogEntry
		var data, ts string
		if err := rows.Scan(&e.EventID, &e.TurnNumber, &e.LocationID, &e.ObserverID, &e.ActionType, &data, &ts); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.EventData); err != nil {
			return nil, fmt.Errorf("unmarshaling event data: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = t
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Relationship ledger

func (s *SQLiteStore) Relationship(ctx context.Context, fromID, toID string) (*RelationshipEdge, error) {
	var edge RelationshipEdge
	var tags, history sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT from_entity_id, to_entity_id, COALESCE(type, ''), COALESCE(trust_level, ''), COALESCE(status, ''), tags, history
		FROM relationships
		WHERE from_entity_id = ? AND to_entity_id = ?`,
		fromID, toID).Scan(&edge.FromEntityID, &edge.ToEntityID, &edge.Type, &edge.TrustLevel, &edge.Status, &tags, &history)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading relationship (%s,%s): %w", fromID, toID, err)
	}
	if tags.Valid {
		// Tags stored as JSON; a parse failure just yields an empty set.
		_ = json.Unmarshal([]byte(tags.String), &edge.Tags)
	}
	if history.Valid {
		_ = json.Unmarshal([]byte(history.String), &edge.History)
	}
	return &edge, nil
}

func (s *SQLiteStore) UpsertRelationship(ctx context.Context, edge *RelationshipEdge) error {
	tags, err := json.Marshal(edge.Tags)
	if err != nil {
		return fmt.Errorf("marshaling relationship tags: %w", err)
	}
	history, err := json.Marshal(edge.History)
	if err != nil {
		return fmt.Errorf("marshaling relationship history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO relationships (from_entity_id, to_entity_id, type, trust_level, status, tags, history)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		edge.FromEntityID, edge.ToEntityID, edge.Type, edge.TrustLevel, edge.Status,
		string(tags), string(history))
	if err != nil {
		return fmt.Errorf("upserting relationship (%s,%s): %w", edge.FromEntityID, edge.ToEntityID, err)
	}
	return nil
}

func (s *SQLiteStore) ClearWorld(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM entities; DELETE FROM event_log; DELETE FROM relationships;`)
	if err != nil {
		return fmt.Errorf("clearing world: %w", err)
	}
	return nil
}
