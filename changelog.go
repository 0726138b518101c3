package streamsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// EventSink receives decoded change events. StreamEngine implements it.
type EventSink interface {
	ProcessEvent(event Event) EngineResult
}

// ChangelogSourceConfig configures a change-log table poller.
type ChangelogSourceConfig struct {
	// Path is the SQLite database file holding the change log.
	Path string `yaml:"path"`

	// Table is the change-log table name. It must have the columns
	// (id INTEGER PRIMARY KEY, table_name TEXT, op TEXT, payload TEXT,
	// changed_at INTEGER).
	Table string `yaml:"table"`

	// BatchSize bounds the rows consumed per poll.
	BatchSize int `yaml:"batchSize"`

	// ConsumerID identifies this consumer's checkpoint row. Generated
	// when empty.
	ConsumerID string `yaml:"consumerId"`
}

// DefaultChangelogSourceConfig returns default source configuration.
func DefaultChangelogSourceConfig(path string) ChangelogSourceConfig {
	return ChangelogSourceConfig{
		Path:      path,
		Table:     "change_log",
		BatchSize: 500,
	}
}

// ChangelogSource is the reference CDC input adapter: it polls a
// change-log table, converts rows into events, and feeds them to an
// EventSink, checkpointing the last consumed change id so a restarted
// consumer resumes where it left off. The polling loop lives here, not
// in the engine; the engine itself stays timer-free.
type ChangelogSource struct {
	config ChangelogSourceConfig
	db     *sql.DB
	sink   EventSink
	logger zerolog.Logger

	lastID int64
}

// OpenChangelogSource opens the change-log database and loads the
// consumer's checkpoint.
func OpenChangelogSource(config ChangelogSourceConfig, sink EventSink) (*ChangelogSource, error) {
	if config.Table == "" {
		config.Table = "change_log"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.ConsumerID == "" {
		config.ConsumerID = uuid.NewString()
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open changelog db: %w", err)
	}

	source := &ChangelogSource{
		config: config,
		db:     db,
		sink:   sink,
		logger: componentLogger("changelog"),
	}
	if err := source.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return source, nil
}

func (s *ChangelogSource) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS _streamsync_checkpoint (
		consumer_id TEXT PRIMARY KEY,
		last_change_id INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}

	row := s.db.QueryRow(
		`SELECT last_change_id FROM _streamsync_checkpoint WHERE consumer_id = ?`,
		s.config.ConsumerID)
	switch err := row.Scan(&s.lastID); err {
	case nil, sql.ErrNoRows:
		return nil
	default:
		return fmt.Errorf("load checkpoint: %w", err)
	}
}

// Close closes the underlying database.
func (s *ChangelogSource) Close() error {
	return s.db.Close()
}

// LastChangeID returns the id of the last consumed change-log row.
func (s *ChangelogSource) LastChangeID() int64 {
	return s.lastID
}

// Poll consumes one batch of change-log rows past the checkpoint,
// feeding each decoded event to the sink, and advances the checkpoint.
// Returns the number of rows consumed. Rows with unparseable payloads
// are skipped with a warning, not returned as errors.
func (s *ChangelogSource) Poll(ctx context.Context) (int, error) {
	query := fmt.Sprintf(
		`SELECT id, table_name, op, payload, changed_at FROM %s
		 WHERE id > ? ORDER BY id LIMIT ?`, s.config.Table)

	rows, err := s.db.QueryContext(ctx, query, s.lastID, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("query changelog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	consumed := 0
	maxID := s.lastID
	for rows.Next() {
		var (
			id        int64
			tableName string
			op        string
			payload   sql.NullString
			changedAt int64
		)
		if err := rows.Scan(&id, &tableName, &op, &payload, &changedAt); err != nil {
			return consumed, fmt.Errorf("scan changelog row: %w", err)
		}
		maxID = id
		consumed++

		event := Event{}
		if payload.Valid && payload.String != "" {
			var fields map[string]any
			if err := json.Unmarshal([]byte(payload.String), &fields); err != nil {
				s.logger.Warn().
					Int64("changeId", id).
					Err(err).
					Msg("skipping change with unparseable payload")
				continue
			}
			for k, v := range fields {
				event[k] = v
			}
		}
		event["op"] = op
		event["table"] = tableName
		if _, ok := event["timestamp"]; !ok {
			event["timestamp"] = changedAt
		}

		s.sink.ProcessEvent(event)
	}
	if err := rows.Err(); err != nil {
		return consumed, fmt.Errorf("iterate changelog: %w", err)
	}

	if maxID > s.lastID {
		if err := s.saveCheckpoint(ctx, maxID); err != nil {
			return consumed, err
		}
		s.lastID = maxID
	}
	return consumed, nil
}

func (s *ChangelogSource) saveCheckpoint(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _streamsync_checkpoint (consumer_id, last_change_id)
		 VALUES (?, ?)
		 ON CONFLICT(consumer_id) DO UPDATE SET last_change_id = excluded.last_change_id`,
		s.config.ConsumerID, id)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Run polls on the interval until the context is cancelled.
func (s *ChangelogSource) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil {
				s.logger.Error().Err(err).Msg("changelog poll failed")
			}
		}
	}
}
