// Package coach generates post-session form feedback from workout stats via
// the Gemini API.
package coach

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"rep-detection/models"
)

type GeminiCoach struct {
	client *genai.Client
}

func NewGeminiCoach(ctx context.Context) (*GeminiCoach, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiCoach{client: client}, nil
}

const coachPrompt = `You are a concise strength coach reviewing one squat session
captured by a camera-based rep counter. You get the rep count, session duration,
camera view and the mean keypoint confidence of the counted reps (low confidence
usually means poor framing or occlusion, not poor form).
Give 2-3 short, encouraging, practical observations. Under 120 words. No markdown.`

// SessionFeedback produces a short coaching note for a completed workout.
func (g *GeminiCoach) SessionFeedback(ctx context.Context, workout models.Workout) (string, error) {
	summary := fmt.Sprintf(
		"reps=%d durationSeconds=%.0f view=%s meanConfidence=%.2f",
		workout.RepCount,
		float64(workout.DurationMs)/1000,
		workout.View,
		workout.MeanConfidence,
	)

	systemInstruction := genai.NewContentFromText(coachPrompt, genai.RoleModel)
	userContent := genai.NewContentFromText(summary, genai.RoleUser)

	result, err := g.client.Models.GenerateContent(ctx, "gemini-2.0-flash",
		[]*genai.Content{systemInstruction, userContent}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate feedback: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("empty feedback response")
	}
	return text, nil
}
