// Package db stores workout summaries in SQLite or MongoDB, selected by the
// DB_TYPE environment variable.
package db

import (
	"fmt"
	"path/filepath"

	"rep-detection/models"
	"rep-detection/utils"
)

// DBClient is the storage capability the server wires at startup.
type DBClient interface {
	Close() error
	StoreWorkout(workout *models.Workout) error
	GetWorkouts(limit int) ([]models.Workout, error)
}

// NewDBClient returns the configured client. DB_TYPE=mongo selects MongoDB
// (MONGO_URI, MONGO_DB); anything else selects SQLite (SQLITE_DB_PATH).
func NewDBClient() (DBClient, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")

	switch dbType {
	case "mongo", "mongodb":
		uri := utils.GetEnv("MONGO_URI", "mongodb://localhost:27017")
		dbName := utils.GetEnv("MONGO_DB", "repdetection")
		return NewMongoClient(uri, dbName)
	case "sqlite", "sqlite3":
		path := utils.GetEnv("SQLITE_DB_PATH", filepath.Join("data", "repdetection.db"))
		return NewSQLiteClient(path)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE: %s", dbType)
	}
}
