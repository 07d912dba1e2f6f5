package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"

	"rep-detection/db"
	"rep-detection/inference"
	"rep-detection/metrics"
	"rep-detection/models"
	"rep-detection/pose"
	"rep-detection/tts"
	"rep-detection/utils"
	"rep-detection/workouts"
)

// ttsMilestone is the rep interval at which a spoken count is pushed to the
// client when TTS is enabled.
const ttsMilestone = 5

type socketController struct {
	estimatorURL string
	stats        *metrics.Metrics
	dbClient     db.DBClient
	ttsClient    *tts.GoogleTTSClient

	mu       sync.Mutex
	sessions map[string]*pose.Session
}

func newSocketController(estimatorURL string, stats *metrics.Metrics, dbClient db.DBClient, ttsClient *tts.GoogleTTSClient) *socketController {
	return &socketController{
		estimatorURL: estimatorURL,
		stats:        stats,
		dbClient:     dbClient,
		ttsClient:    ttsClient,
		sessions:     make(map[string]*pose.Session),
	}
}

// announcingEmitter wraps a socket connection and, when TTS is configured,
// pushes milestone audio alongside the repComplete events passing through.
type announcingEmitter struct {
	socketio.Conn
	controller *socketController
	repCount   int
}

func (e *announcingEmitter) Emit(event string, v ...interface{}) {
	if event == pose.EventRepComplete && e.controller.ttsClient != nil {
		e.repCount++
		if e.repCount%ttsMilestone == 0 {
			go e.controller.announce(e.Conn, e.repCount)
		}
	}
	e.Conn.Emit(event, v...)
}

func (c *socketController) announce(socket socketio.Conn, count int) {
	ctx := context.Background()
	audio, err := c.ttsClient.AnnounceRepCount(ctx, count)
	if err != nil {
		utils.LogError(ctx, "failed to synthesize rep announcement", err)
		return
	}
	socket.Emit("repAudio", map[string]string{
		"audio":  base64.StdEncoding.EncodeToString(audio),
		"format": "mp3",
	})
}

func (c *socketController) session(id string) *pose.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

func (c *socketController) handleInit(socket socketio.Conn, msg string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	var data models.InitData
	if err := json.Unmarshal([]byte(msg), &data); err != nil {
		logger.ErrorContext(ctx, "failed to parse init payload", slog.Any("error", xerrors.New(err)))
		socket.Emit(pose.EventError, pose.ErrorEvent{Code: pose.ErrCodeUnsupportedFrame, Message: "invalid init payload"})
		return
	}

	estimator := inference.NewClient(c.estimatorURL, data.Model)
	session := pose.NewSession(estimator, &announcingEmitter{Conn: socket, controller: c}, c.stats)
	session.Init(data)

	c.mu.Lock()
	if old := c.sessions[socket.ID()]; old != nil {
		old.Stop()
	} else {
		c.stats.ActiveSessions.Add(1)
	}
	c.sessions[socket.ID()] = session
	c.mu.Unlock()

	logger.InfoContext(ctx, "session initialised",
		slog.String("socketID", socket.ID()),
		slog.String("model", data.Model),
		slog.String("view", data.View),
		slog.Float64("targetFps", data.TargetFPS),
		slog.Bool("debug", data.Debug),
	)
	socket.Emit("sessionReady", map[string]string{"view": string(pose.ParseView(data.View))})
}

func (c *socketController) handleFrame(socket socketio.Conn, msg string) {
	session := c.session(socket.ID())
	if session == nil {
		socket.Emit(pose.EventError, pose.ErrorEvent{Code: pose.ErrCodeNotInitialized, Message: "frame before init"})
		return
	}

	var data models.FrameData
	if err := json.Unmarshal([]byte(msg), &data); err != nil {
		socket.Emit(pose.EventError, pose.ErrorEvent{Code: pose.ErrCodeUnsupportedFrame, Message: "invalid frame payload"})
		return
	}

	image, err := decodeFrameImage(data.Image)
	if err != nil {
		socket.Emit(pose.EventError, pose.ErrorEvent{
			TimestampMs: data.TimestampMs,
			Code:        pose.ErrCodeUnsupportedFrame,
			Message:     "unable to decode frame image",
		})
		return
	}

	session.HandleFrame(image, data.TimestampMs)
}

func (c *socketController) handleConfigure(socket socketio.Conn, msg string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	session := c.session(socket.ID())
	if session == nil {
		socket.Emit(pose.EventError, pose.ErrorEvent{Code: pose.ErrCodeNotInitialized, Message: "configure before init"})
		return
	}

	var patch models.ConfigPatch
	if err := json.Unmarshal([]byte(msg), &patch); err != nil {
		logger.ErrorContext(ctx, "failed to parse config patch", slog.Any("error", xerrors.New(err)))
		socket.Emit(pose.EventError, pose.ErrorEvent{Code: pose.ErrCodeUnsupportedFrame, Message: "invalid config payload"})
		return
	}

	session.Configure(patch)
	logger.InfoContext(ctx, "session reconfigured", slog.String("socketID", socket.ID()))
}

func (c *socketController) handleStop(socket socketio.Conn) {
	c.endSession(socket.ID(), true)
}

func (c *socketController) handleDisconnect(socketID string) {
	c.endSession(socketID, false)
}

func (c *socketController) endSession(socketID string, persist bool) {
	c.mu.Lock()
	session := c.sessions[socketID]
	delete(c.sessions, socketID)
	c.mu.Unlock()
	if session == nil {
		return
	}
	c.stats.ActiveSessions.Add(-1)

	summary := session.Stop()
	if !persist || summary.RepCount == 0 {
		return
	}
	c.persistWorkout(summary)
}

func (c *socketController) persistWorkout(summary pose.Summary) {
	logger := utils.GetLogger()
	ctx := context.Background()

	workout := &models.Workout{
		ID:             uuid.NewString(),
		StartedAt:      summary.StartedAt,
		EndedAt:        summary.EndedAt,
		View:           string(summary.View),
		Model:          summary.Model,
		RepCount:       summary.RepCount,
		MeanConfidence: summary.MeanConfidence,
		DurationMs:     summary.DurationMs,
	}

	var err error
	if c.dbClient != nil {
		err = c.dbClient.StoreWorkout(workout)
	} else {
		err = workouts.SaveWorkout(workout)
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to persist workout", slog.Any("error", xerrors.New(err)))
		return
	}
	log.Printf("[Socket] Workout saved: %d reps over %.1fs\n", workout.RepCount, float64(workout.DurationMs)/1000)
}

// decodeFrameImage accepts either bare base64 or a data URL
// ("data:image/jpeg;base64,...") and returns the raw image bytes.
func decodeFrameImage(encoded string) ([]byte, error) {
	if idx := strings.Index(encoded, "base64,"); idx != -1 {
		encoded = encoded[idx+len("base64,"):]
	}
	return base64.StdEncoding.DecodeString(encoded)
}
