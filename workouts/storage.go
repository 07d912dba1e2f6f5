// Package workouts persists completed session summaries to a JSON file.
// It is the zero-dependency fallback store; the db package holds the real
// SQLite/Mongo clients.
package workouts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"rep-detection/models"
	"rep-detection/utils"
)

var (
	workoutsFile = "workouts.json"
	mu           sync.RWMutex
)

func loadWorkoutsInternal() ([]models.Workout, error) {
	filePath := filepath.Join("data", workoutsFile)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return []models.Workout{}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading workouts file: %w", err)
	}
	if len(data) == 0 {
		return []models.Workout{}, nil
	}

	var workouts []models.Workout
	if err := json.Unmarshal(data, &workouts); err != nil {
		return nil, fmt.Errorf("error unmarshaling workouts: %w", err)
	}
	return workouts, nil
}

// LoadWorkouts returns all stored workout summaries.
func LoadWorkouts() ([]models.Workout, error) {
	mu.RLock()
	defer mu.RUnlock()
	return loadWorkoutsInternal()
}

// SaveWorkout appends a workout summary to the JSON file, assigning an ID
// and end timestamp when unset.
func SaveWorkout(workout *models.Workout) error {
	mu.Lock()
	defer mu.Unlock()

	workouts, err := loadWorkoutsInternal()
	if err != nil {
		return err
	}

	if workout.ID == "" {
		workout.ID = uuid.NewString()
	}
	if workout.EndedAt.IsZero() {
		workout.EndedAt = time.Now()
	}

	workouts = append(workouts, *workout)

	filePath := filepath.Join("data", workoutsFile)
	if err := utils.CreateFolder(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("error creating data directory: %w", err)
	}

	data, err := json.MarshalIndent(workouts, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling workouts: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("error writing workouts file: %w", err)
	}
	return nil
}
