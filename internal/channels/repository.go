package channels

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Repository defines the persistence operations for channel configurations.
type Repository interface {
	Create(ctx context.Context, cfg *Config) error
	List(ctx context.Context) ([]Config, error)
	ListByObjective(ctx context.Context, objective string) ([]Config, error)
	Get(ctx context.Context, id string) (*Config, error)
	GetByName(ctx context.Context, name, objective string) (*Config, error)
	Update(ctx context.Context, cfg *Config) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed configuration repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const configColumns = `id, name, objective, exposure_ms, analog_gain,
	illumination_source, illumination_intensity, filter_position,
	z_offset_um, camera_sn, created_at, updated_at`

// Create inserts a new configuration.
// Returns ErrDuplicate if (name, objective) is already taken.
func (r *SQLiteRepository) Create(ctx context.Context, cfg *Config) error {
	const query = `INSERT INTO channel_configs (id, name, objective, exposure_ms,
		analog_gain, illumination_source, illumination_intensity,
		filter_position, z_offset_um, camera_sn)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		cfg.ID, cfg.Name, cfg.Objective, cfg.ExposureMs,
		cfg.AnalogGain, cfg.IlluminationSource, cfg.IlluminationIntensity,
		cfg.FilterPosition, cfg.ZOffsetUm, cfg.CameraSN)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s @ %s", ErrDuplicate, cfg.Name, cfg.Objective)
		}
		return fmt.Errorf("inserting channel config %s: %w", cfg.ID, err)
	}
	return nil
}

// List returns all configurations ordered by objective then name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Config, error) {
	query := `SELECT ` + configColumns + ` FROM channel_configs ORDER BY objective, name`
	return r.queryConfigs(ctx, query)
}

// ListByObjective returns the configurations available under one objective.
func (r *SQLiteRepository) ListByObjective(ctx context.Context, objective string) ([]Config, error) {
	query := `SELECT ` + configColumns + ` FROM channel_configs
		WHERE objective = ? ORDER BY name`
	return r.queryConfigs(ctx, query, objective)
}

// Get returns a single configuration by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Config, error) {
	query := `SELECT ` + configColumns + ` FROM channel_configs WHERE id = ?`
	return scanConfig(r.db.QueryRowContext(ctx, query, id))
}

// GetByName returns the configuration with the given name under the given
// objective. This is the lookup the mode switch performs.
func (r *SQLiteRepository) GetByName(ctx context.Context, name, objective string) (*Config, error) {
	query := `SELECT ` + configColumns + ` FROM channel_configs
		WHERE name = ? AND objective = ?`
	return scanConfig(r.db.QueryRowContext(ctx, query, name, objective))
}

// Update rewrites an existing configuration's settings.
func (r *SQLiteRepository) Update(ctx context.Context, cfg *Config) error {
	const query = `UPDATE channel_configs SET name = ?, objective = ?,
		exposure_ms = ?, analog_gain = ?, illumination_source = ?,
		illumination_intensity = ?, filter_position = ?, z_offset_um = ?,
		camera_sn = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		cfg.Name, cfg.Objective, cfg.ExposureMs, cfg.AnalogGain,
		cfg.IlluminationSource, cfg.IlluminationIntensity,
		cfg.FilterPosition, cfg.ZOffsetUm, cfg.CameraSN, cfg.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s @ %s", ErrDuplicate, cfg.Name, cfg.Objective)
		}
		return fmt.Errorf("updating channel config %s: %w", cfg.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a single configuration by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM channel_configs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting channel config %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// queryConfigs executes a query and returns a slice of Config.
func (r *SQLiteRepository) queryConfigs(ctx context.Context, query string, args ...any) ([]Config, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying channel configs: %w", err)
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		c, err := scanConfigRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning channel config row: %w", err)
		}
		configs = append(configs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channel config rows: %w", err)
	}
	return configs, nil
}

// scanConfig scans a single row into a Config (for QueryRow).
func scanConfig(row *sql.Row) (*Config, error) {
	var c Config
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.Name, &c.Objective, &c.ExposureMs, &c.AnalogGain,
		&c.IlluminationSource, &c.IlluminationIntensity, &c.FilterPosition,
		&c.ZOffsetUm, &c.CameraSN, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning channel config: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// scanConfigRow scans a configuration from a Rows cursor.
func scanConfigRow(rows *sql.Rows) (*Config, error) {
	var c Config
	var createdAt, updatedAt string

	err := rows.Scan(&c.ID, &c.Name, &c.Objective, &c.ExposureMs, &c.AnalogGain,
		&c.IlluminationSource, &c.IlluminationIntensity, &c.FilterPosition,
		&c.ZOffsetUm, &c.CameraSN, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning channel config row: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// parseTime parses an ISO 8601 timestamp from SQLite.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
