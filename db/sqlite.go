package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"rep-detection/models"
	"rep-detection/utils"
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createWorkoutsTable := `
    CREATE TABLE IF NOT EXISTS workouts (
        id TEXT PRIMARY KEY,
        started_at DATETIME NOT NULL,
        ended_at DATETIME NOT NULL,
        view TEXT NOT NULL,
        model TEXT,
        rep_count INTEGER NOT NULL DEFAULT 0,
        mean_confidence REAL NOT NULL DEFAULT 0,
        duration_ms INTEGER NOT NULL DEFAULT 0,
        reps TEXT,
        metadata TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_workouts_started_at ON workouts(started_at);
    `

	if _, err := db.Exec(createWorkoutsTable); err != nil {
		return fmt.Errorf("error creating workouts table: %w", err)
	}
	return nil
}

func (c *SQLiteClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// StoreWorkout inserts one completed session summary.
func (c *SQLiteClient) StoreWorkout(workout *models.Workout) error {
	var metadataJSON []byte
	if workout.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(workout.Metadata)
		if err != nil {
			return fmt.Errorf("error marshaling workout metadata: %w", err)
		}
	}

	_, err := c.db.Exec(`
        INSERT INTO workouts (id, started_at, ended_at, view, model, rep_count, mean_confidence, duration_ms, reps, metadata)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		workout.ID,
		workout.StartedAt,
		workout.EndedAt,
		workout.View,
		workout.Model,
		workout.RepCount,
		workout.MeanConfidence,
		workout.DurationMs,
		string(workout.Reps),
		string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("error inserting workout: %w", err)
	}
	return nil
}

// GetWorkouts returns up to limit summaries, most recent first. limit <= 0
// returns everything.
func (c *SQLiteClient) GetWorkouts(limit int) ([]models.Workout, error) {
	query := `
        SELECT id, started_at, ended_at, view, model, rep_count, mean_confidence, duration_ms, reps, metadata
        FROM workouts ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying workouts: %w", err)
	}
	defer rows.Close()

	var workouts []models.Workout
	for rows.Next() {
		var w models.Workout
		var reps, metadata sql.NullString
		if err := rows.Scan(&w.ID, &w.StartedAt, &w.EndedAt, &w.View, &w.Model,
			&w.RepCount, &w.MeanConfidence, &w.DurationMs, &reps, &metadata); err != nil {
			return nil, fmt.Errorf("error scanning workout row: %w", err)
		}
		if reps.Valid && reps.String != "" {
			w.Reps = json.RawMessage(reps.String)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &w.Metadata); err != nil {
				return nil, fmt.Errorf("error unmarshaling workout metadata: %w", err)
			}
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}
