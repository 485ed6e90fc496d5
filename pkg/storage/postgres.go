package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The recorder and spike callbacks are the only writers
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

const sampleColumns = `
	id, recorded_at, energy_savings_pct, co2_offset_kg, power_draw_mw,
	cooling_pue, avg_gpu_load, avg_cooling, online_nodes, total_nodes,
	spike_active, spike_region, spike_multiplier`

// SaveSample stores one stats sample, assigning an ID and timestamp if unset
func (s *PostgresStore) SaveSample(ctx context.Context, sample *models.StatsSample) error {
	prepareSample(sample)

	query := `INSERT INTO stats_samples (` + sampleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	var region sql.NullString
	if sample.SpikeRegion != "" {
		region = sql.NullString{String: sample.SpikeRegion, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		sample.ID, sample.RecordedAt,
		sample.Stats.EnergySavingsPct, sample.Stats.CO2OffsetKg,
		sample.Stats.PowerDrawMW, sample.Stats.CoolingPUE,
		sample.AvgGPULoad, sample.AvgCooling,
		sample.OnlineNodes, sample.TotalNodes,
		sample.SpikeActive, region, sample.SpikeMultiplier,
	)
	if err != nil {
		return fmt.Errorf("failed to save sample: %w", err)
	}
	return nil
}

// GetSample retrieves a sample by ID
func (s *PostgresStore) GetSample(ctx context.Context, id string) (*models.StatsSample, error) {
	query := `SELECT ` + sampleColumns + ` FROM stats_samples WHERE id = $1`

	sample, err := scanSample(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sample %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return sample, nil
}

// ListSamples retrieves the most recent samples
func (s *PostgresStore) ListSamples(ctx context.Context, limit int) ([]*models.StatsSample, error) {
	query := `SELECT ` + sampleColumns + `
		FROM stats_samples
		ORDER BY recorded_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*models.StatsSample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	return samples, rows.Err()
}

// LogSpikeEvent records a transition of the spike machine
func (s *PostgresStore) LogSpikeEvent(ctx context.Context, event *models.SpikeEvent) error {
	prepareEvent(event)

	query := `
		INSERT INTO spike_events (
			id, transition, region, multiplier, duration_ticks, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, string(event.Transition), event.Region,
		event.Multiplier, event.DurationTicks, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log spike event: %w", err)
	}
	return nil
}

// ListSpikeEvents retrieves the most recent spike transitions
func (s *PostgresStore) ListSpikeEvents(ctx context.Context, limit int) ([]*models.SpikeEvent, error) {
	query := `
		SELECT id, transition, region, multiplier, duration_ticks, occurred_at
		FROM spike_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.SpikeEvent
	for rows.Next() {
		var event models.SpikeEvent
		var transition string

		err := rows.Scan(
			&event.ID, &transition, &event.Region,
			&event.Multiplier, &event.DurationTicks, &event.OccurredAt,
		)
		if err != nil {
			return nil, err
		}
		event.Transition = models.SpikeTransition(transition)
		events = append(events, &event)
	}

	return events, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (*models.StatsSample, error) {
	var sample models.StatsSample
	var region sql.NullString

	err := row.Scan(
		&sample.ID, &sample.RecordedAt,
		&sample.Stats.EnergySavingsPct, &sample.Stats.CO2OffsetKg,
		&sample.Stats.PowerDrawMW, &sample.Stats.CoolingPUE,
		&sample.AvgGPULoad, &sample.AvgCooling,
		&sample.OnlineNodes, &sample.TotalNodes,
		&sample.SpikeActive, &region, &sample.SpikeMultiplier,
	)
	if err != nil {
		return nil, err
	}
	sample.SpikeRegion = region.String
	return &sample, nil
}

func prepareSample(sample *models.StatsSample) {
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}
}

func prepareEvent(event *models.SpikeEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
}
