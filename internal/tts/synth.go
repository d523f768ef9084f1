// Package tts renders story audio through the ElevenLabs API. Synthesis is
// best-effort: missing credentials or provider failures yield an
// "unavailable" result, never an error.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultBaseURL  = "https://api.elevenlabs.io"
	voiceID         = "21m00Tcm4TlvDq8ikWAM"
	modelID         = "eleven_monolingual_v1"
	synthTimeout    = 60 * time.Second
	filePermissions = 0o644
	dirPermissions  = 0o755
)

// Result reports whether audio was produced and where it is served from.
type Result struct {
	Available bool
	Path      string // web path with cache-busting query, e.g. /teaser_ab12cd34.mp3?v=169...
}

// Synthesizer converts text to MP3 files under the public directory.
type Synthesizer struct {
	baseURL    string
	apiKey     string
	publicDir  string
	httpClient *http.Client
	log        *slog.Logger
}

// NewSynthesizer creates a synthesizer writing into publicDir. An empty
// apiKey disables synthesis without error.
func NewSynthesizer(apiKey, publicDir string, log *slog.Logger) *Synthesizer {
	return &Synthesizer{
		baseURL:   defaultBaseURL,
		apiKey:    apiKey,
		publicDir: publicDir,
		httpClient: &http.Client{
			Timeout: synthTimeout,
		},
		log: log,
	}
}

type synthRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize renders text to speech and stores it as filename under the
// public directory. Any failure, including absent credentials, returns an
// unavailable Result.
func (s *Synthesizer) Synthesize(ctx context.Context, text, filename string) Result {
	if s.apiKey == "" {
		s.log.Debug("TTS key not configured, skipping synthesis")
		return Result{}
	}

	audio, err := s.requestAudio(ctx, text)
	if err != nil {
		s.log.Warn("TTS synthesis failed", "file", filename, "error", err)
		return Result{}
	}

	if err := os.MkdirAll(s.publicDir, dirPermissions); err != nil {
		s.log.Error("create public dir", "error", err)
		return Result{}
	}

	path := filepath.Join(s.publicDir, filename)
	if err := os.WriteFile(path, audio, filePermissions); err != nil {
		s.log.Error("write audio file", "path", path, "error", err)
		return Result{}
	}

	s.log.Info("audio generated", "file", filename, "bytes", len(audio))

	return Result{
		Available: true,
		Path:      fmt.Sprintf("/%s?v=%d", filename, time.Now().Unix()),
	}
}

func (s *Synthesizer) requestAudio(ctx context.Context, text string) ([]byte, error) {
	body := synthRequest{
		Text:    text,
		ModelID: modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.7,
			SimilarityBoost: 0.8,
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	url := s.baseURL + "/v1/text-to-speech/" + voiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(data))
	}

	return data, nil
}
