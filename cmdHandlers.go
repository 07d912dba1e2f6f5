package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"

	"rep-detection/coach"
	"rep-detection/db"
	"rep-detection/inference"
	"rep-detection/metrics"
	"rep-detection/models"
	"rep-detection/pose"
	"rep-detection/tts"
	"rep-detection/utils"
	"rep-detection/workouts"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func allowCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
}

func newWorkoutsHandler(dbClient db.DBClient) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		allowCORS(w, "GET")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		var (
			list []models.Workout
			err  error
		)
		if dbClient != nil {
			list, err = dbClient.GetWorkouts(limit)
		} else {
			list, err = workouts.LoadWorkouts()
		}
		if err != nil {
			logger.ErrorContext(ctx, "failed to load workouts", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to load workouts")
			return
		}
		if list == nil {
			list = []models.Workout{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type frameClassifyResponse struct {
	Keypoints  []pose.Keypoint `json:"keypoints"`
	Signal     float64         `json:"signal"`
	Confidence float64         `json:"confidence"`
	Valid      bool            `json:"valid"`
	View       string          `json:"view"`
}

// newFrameClassifyHandler runs a single frame through the estimator and the
// geometry pass without touching any session state. Debug tooling for
// clients tuning camera placement.
func newFrameClassifyHandler(estimatorURL string) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		allowCORS(w, "POST")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var data models.FrameData
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			logger.ErrorContext(ctx, "failed to parse frame payload", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadRequest, "invalid frame payload")
			return
		}

		image, err := decodeFrameImage(data.Image)
		if err != nil || len(image) == 0 {
			writeJSONError(w, http.StatusBadRequest, "unable to decode frame image")
			return
		}

		view := pose.ParseView(r.URL.Query().Get("view"))
		model := r.URL.Query().Get("model")

		estimator := inference.NewClient(estimatorURL, model)
		defer estimator.Close()

		points, err := estimator.Estimate(ctx, image)
		if err != nil {
			logger.ErrorContext(ctx, "estimator failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadGateway, "pose estimation failed")
			return
		}

		cfg := pose.DefaultConfig()
		res := pose.Resolve(cfg, view)
		var sig pose.Signal
		if len(points) > 0 {
			kps := pose.IndexKeypoints(points)
			if pose.ValidateFrame(kps, cfg, view, res) {
				if view == pose.ViewRear {
					sig = pose.HipDropSignal(kps, res.KeypointConfidence)
				} else {
					sig = pose.KneeAngleSignal(kps, res.KeypointConfidence, res.SingleSidePenalty)
				}
			}
		}

		writeJSON(w, http.StatusOK, frameClassifyResponse{
			Keypoints:  points,
			Signal:     sig.Value,
			Confidence: sig.Confidence,
			Valid:      sig.Valid,
			View:       string(view),
		})
	}
}

func newHealthHandler(estimatorURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowCORS(w, "GET")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		client := inference.NewClient(estimatorURL, "")
		defer client.Close()

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := client.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"backend": client.Backend(),
		})
	}
}

func newCoachHandler() http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		allowCORS(w, "POST")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var workout models.Workout
		if err := json.NewDecoder(r.Body).Decode(&workout); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid workout payload")
			return
		}

		geminiCoach, err := coach.NewGeminiCoach(ctx)
		if err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "coaching is not configured")
			return
		}

		feedback, err := geminiCoach.SessionFeedback(ctx, workout)
		if err != nil {
			logger.ErrorContext(ctx, "failed to generate coaching feedback", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to generate feedback")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"feedback": feedback})
	}
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	logger := utils.GetLogger()
	ctx := context.Background()

	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	estimatorURL := utils.GetEnv("ESTIMATOR_SERVICE_URL", "http://localhost:5003")

	probe := inference.NewClient(estimatorURL, "")
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := probe.HealthCheck(probeCtx); err != nil {
		log.Printf("WARNING: %v\n", err)
		log.Println("The server will start but frame processing will fail until the estimator service is up.")
	} else {
		log.Printf("Estimator service is available (backend: %s)\n", probe.Backend())
	}
	cancel()
	probe.Close()

	stats := metrics.New()

	var dbClient db.DBClient
	if strings.EqualFold(utils.GetEnv("DB_ENABLED", "true"), "true") {
		client, err := db.NewDBClient()
		if err != nil {
			logger.ErrorContext(ctx, "failed to open workout store, falling back to JSON file",
				slog.Any("error", xerrors.New(err)))
		} else {
			dbClient = client
			defer dbClient.Close()
		}
	}

	var ttsClient *tts.GoogleTTSClient
	if strings.EqualFold(utils.GetEnv("REP_TTS_ENABLED", "false"), "true") {
		client, err := tts.NewGoogleTTSClient()
		if err != nil {
			log.Printf("TTS disabled: %v\n", err)
		} else {
			ttsClient = client
		}
	}

	controller := newSocketController(estimatorURL, stats, dbClient, ttsClient)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		return nil
	})

	server.OnEvent("/", "init", func(socket socketio.Conn, msg string) {
		controller.handleInit(socket, msg)
	})

	server.OnEvent("/", "frame", func(socket socketio.Conn, msg string) {
		// The frame gate inside the session makes this cheap even when the
		// client floods; the recover keeps one bad payload from killing the
		// connection handler.
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic in frame handler for socket %s: %v\n", socket.ID(), r)
				socket.Emit(pose.EventError, pose.ErrorEvent{
					Code:    pose.ErrCodeInternal,
					Message: "internal server error during frame handling",
				})
			}
		}()
		controller.handleFrame(socket, msg)
	})

	server.OnEvent("/", "configure", func(socket socketio.Conn, msg string) {
		controller.handleConfigure(socket, msg)
	})

	server.OnEvent("/", "stop", func(socket socketio.Conn) {
		log.Printf("stop received from %s\n", socket.ID())
		controller.handleStop(socket)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
		controller.handleDisconnect(s.ID())
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	serveHTTPS := protocol == "https"

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/workouts", newWorkoutsHandler(dbClient))
	mux.HandleFunc("/api/frames/classify", newFrameClassifyHandler(estimatorURL))
	mux.HandleFunc("/api/health", newHealthHandler(estimatorURL))
	mux.HandleFunc("/api/coach", newCoachHandler())
	mux.Handle("/metrics", stats.Handler())
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, serveHTTPS, port, mux)
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
