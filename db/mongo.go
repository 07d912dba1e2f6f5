package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rep-detection/models"
)

const mongoOpTimeout = 10 * time.Second

type MongoClient struct {
	client   *mongo.Client
	workouts *mongo.Collection
}

func NewMongoClient(uri, dbName string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	return &MongoClient{
		client:   client,
		workouts: client.Database(dbName).Collection("workouts"),
	}, nil
}

func (c *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// StoreWorkout inserts one completed session summary.
func (c *MongoClient) StoreWorkout(workout *models.Workout) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	doc := bson.M{
		"_id":            workout.ID,
		"startedAt":      workout.StartedAt,
		"endedAt":        workout.EndedAt,
		"view":           workout.View,
		"model":          workout.Model,
		"repCount":       workout.RepCount,
		"meanConfidence": workout.MeanConfidence,
		"durationMs":     workout.DurationMs,
	}
	if len(workout.Reps) > 0 {
		doc["reps"] = string(workout.Reps)
	}
	if workout.Metadata != nil {
		doc["metadata"] = workout.Metadata
	}

	if _, err := c.workouts.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("error inserting workout: %w", err)
	}
	return nil
}

// GetWorkouts returns up to limit summaries, most recent first.
func (c *MongoClient) GetWorkouts(limit int) ([]models.Workout, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := c.workouts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying workouts: %w", err)
	}
	defer cursor.Close(ctx)

	var workouts []models.Workout
	for cursor.Next(ctx) {
		var doc struct {
			ID             string         `bson:"_id"`
			StartedAt      time.Time      `bson:"startedAt"`
			EndedAt        time.Time      `bson:"endedAt"`
			View           string         `bson:"view"`
			Model          string         `bson:"model"`
			RepCount       int            `bson:"repCount"`
			MeanConfidence float64        `bson:"meanConfidence"`
			DurationMs     int64          `bson:"durationMs"`
			Reps           string         `bson:"reps"`
			Metadata       map[string]any `bson:"metadata"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding workout: %w", err)
		}
		w := models.Workout{
			ID:             doc.ID,
			StartedAt:      doc.StartedAt,
			EndedAt:        doc.EndedAt,
			View:           doc.View,
			Model:          doc.Model,
			RepCount:       doc.RepCount,
			MeanConfidence: doc.MeanConfidence,
			DurationMs:     doc.DurationMs,
			Metadata:       doc.Metadata,
		}
		if doc.Reps != "" {
			w.Reps = []byte(doc.Reps)
		}
		workouts = append(workouts, w)
	}
	return workouts, cursor.Err()
}
