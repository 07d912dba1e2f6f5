// Package tts synthesizes spoken rep-count announcements through the Google
// Cloud Text-to-Speech REST API. The audio is shipped to the client as
// base64 MP3; playback is the client's problem.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type GoogleTTSClient struct {
	apiKey string
	client *http.Client
}

type TTSRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
		SsmlGender   string `json:"ssmlGender"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string  `json:"audioEncoding"`
		SpeakingRate    float64 `json:"speakingRate,omitempty"`
		Pitch           float64 `json:"pitch,omitempty"`
		VolumeGainDb    float64 `json:"volumeGainDb,omitempty"`
		SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
	} `json:"audioConfig"`
}

type TTSResponse struct {
	AudioContent string `json:"audioContent"`
}

func NewGoogleTTSClient() (*GoogleTTSClient, error) {
	apiKey := os.Getenv("GOOGLE_TTS_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_TTS_API_KEY environment variable is required")
	}

	return &GoogleTTSClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// SynthesizeText converts a short announcement into MP3 audio bytes.
func (g *GoogleTTSClient) SynthesizeText(ctx context.Context, text string) ([]byte, error) {
	ttsReq := TTSRequest{}
	ttsReq.Input.Text = text
	ttsReq.Voice.LanguageCode = "en-US"
	ttsReq.Voice.Name = "en-GB-Standard-F"
	ttsReq.Voice.SsmlGender = "FEMALE"
	ttsReq.AudioConfig.AudioEncoding = "MP3"
	ttsReq.AudioConfig.SpeakingRate = 1.1
	ttsReq.AudioConfig.SampleRateHertz = 24000

	jsonData, err := json.Marshal(ttsReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	url := fmt.Sprintf("https://texttospeech.googleapis.com/v1/text:synthesize?key=%s", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TTS API error: %s - %s", resp.Status, string(body))
	}

	var ttsResp TTSResponse
	if err := json.Unmarshal(body, &ttsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal TTS response: %w", err)
	}

	audioData, err := base64.StdEncoding.DecodeString(ttsResp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	return audioData, nil
}

// AnnounceRepCount synthesizes the milestone callout for a rep count.
func (g *GoogleTTSClient) AnnounceRepCount(ctx context.Context, count int) ([]byte, error) {
	text := fmt.Sprintf("%d reps", count)
	if count == 1 {
		text = "1 rep"
	}
	return g.SynthesizeText(ctx, text)
}
