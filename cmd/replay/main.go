package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"rep-detection/pose"
)

// Replays a recorded keypoint trace through the detection pipeline and
// prints the event stream. Trace format: one JSON object per line,
// {"timestampMs": 123, "keypoints": [{"name": "...", "x":, "y":, "confidence":}]}.
func main() {
	view := flag.String("view", "front", "camera view (front, side, rear)")
	validate := flag.Bool("validate", true, "run orientation/plant validation")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: replay [-view front|side|rear] [-validate=false] <trace.jsonl>")
	}

	file, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to open trace: %v", err)
	}
	defer file.Close()

	cfg := pose.DefaultConfig()
	cfg.OrientationCheck = *validate
	cfg.PlantCheck = *validate
	v := pose.ParseView(*view)
	detector := pose.NewDetector(cfg, v)
	res := pose.Resolve(cfg, v)

	type traceLine struct {
		TimestampMs int64           `json:"timestampMs"`
		Keypoints   []pose.Keypoint `json:"keypoints"`
	}

	var frames, rejected int
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		var line traceLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			log.Fatalf("bad trace line %d: %v", frames+1, err)
		}
		frames++

		var sig pose.Signal
		if len(line.Keypoints) > 0 {
			kps := pose.IndexKeypoints(line.Keypoints)
			if pose.ValidateFrame(kps, cfg, v, res) {
				if v == pose.ViewRear {
					sig = pose.HipDropSignal(kps, res.KeypointConfidence)
				} else {
					sig = pose.KneeAngleSignal(kps, res.KeypointConfidence, res.SingleSidePenalty)
				}
			} else {
				rejected++
			}
		}

		out := detector.Advance(sig, line.TimestampMs, 0)
		if out.PoseLost {
			fmt.Printf("t=%dms poseLost\n", line.TimestampMs)
		}
		if out.PoseRegained {
			fmt.Printf("t=%dms poseRegained\n", line.TimestampMs)
		}
		if out.Rep != nil {
			fmt.Printf("t=%dms repComplete confidence=%.3f (rep #%d)\n",
				line.TimestampMs, out.Rep.Confidence, detector.RepCount())
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("failed to read trace: %v", err)
	}

	fmt.Printf("\n%d frames, %d rejected by validation, %d reps, final phase %s\n",
		frames, rejected, detector.RepCount(), detector.Phase())
}
