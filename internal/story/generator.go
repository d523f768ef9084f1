// Package story generates full stories through a text-generation provider
// and derives the locked teaser shown before payment.
package story

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const generateTimeout = 30 * time.Second

const systemPrompt = `You are a master storyteller. Create engaging, magical stories that are 2-3 minutes long when read aloud.
Stories should have vivid descriptions, emotional depth, and be appropriate for all ages.
Keep the story between 250-350 words.`

// fallbackStory is returned whenever the provider is unreachable, so the
// user-facing flow never dead-ends on an outage.
const fallbackStory = `In a hidden valley where moonlight danced on silver streams, lived a young fox named Ember. Unlike other foxes, Ember could understand the whispers of the wind and the secrets of the stars.

One evening, the Northern Star shared a prophecy about restoring the valley's fading magic. As darkness crept across the land, Ember embarked on a journey to the ancient Stone Circle.

With a gentle touch and pure heart, she reawakened the valley's magic, learning that true power lies in connection and compassion. The stars shone brighter than ever, and the streams sang songs of renewal.`

var whitespaceRuns = regexp.MustCompile(`\s+`)

// Generator calls the text-generation API to produce full stories.
type Generator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewGenerator creates a story generator against an OpenAI-compatible
// chat-completions endpoint.
func NewGenerator(baseURL, apiKey string, log *slog.Logger) *Generator {
	return &Generator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: generateTimeout,
		},
		log: log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate produces a story for the given topic. It never fails: on any
// provider error it returns the fixed fallback story and usedFallback=true.
func (g *Generator) Generate(ctx context.Context, topic string) (string, bool) {
	if g.apiKey == "" {
		g.log.Debug("AI key not configured, using fallback story")
		return fallbackStory, true
	}

	text, err := g.requestStory(ctx, topic)
	if err != nil {
		g.log.Warn("story generation failed, using fallback", "topic", topic, "error", err)
		return fallbackStory, true
	}

	return cleanStoryText(text), false
}

func (g *Generator) requestStory(ctx context.Context, topic string) (string, error) {
	body := chatRequest{
		Model: "gpt-4",
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Create a magical story about: " + topic},
		},
		MaxTokens:   600,
		Temperature: 0.8,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}

	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty completion")
	}

	return parsed.Choices[0].Message.Content, nil
}

// cleanStoryText collapses whitespace runs and guarantees the story ends
// in terminal punctuation.
func cleanStoryText(story string) string {
	story = strings.TrimSpace(whitespaceRuns.ReplaceAllString(story, " "))

	if story != "" && !strings.HasSuffix(story, ".") && !strings.HasSuffix(story, "!") && !strings.HasSuffix(story, "?") {
		story += "."
	}

	return story
}
