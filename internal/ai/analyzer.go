package ai

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/mood"
)

const (
	// MinEntries is how many entries a user needs before analysis is offered.
	MinEntries = 5
	// WindowSize is how many of the most recent entries are sent for analysis.
	WindowSize = 20
)

const (
	analystPersona = "You are an empathetic AI assistant specialized in emotional pattern analysis. " +
		"Provide compassionate, evidence-based insights while respecting user privacy."
	tipsPersona = "Generate 3-5 concise, actionable insights based on mood tracking data."

	analystTemperature = 0.7
	analystMaxTokens   = 1000
	tipsTemperature    = 0.7
	tipsMaxTokens      = 400
)

// Window returns the first WindowSize entries of a newest-first sequence.
func Window(entries []mood.Entry) []mood.Entry {
	if len(entries) > WindowSize {
		return entries[:WindowSize]
	}
	return entries
}

// Analyzer produces structured analyses and quick tips.
type Analyzer struct {
	c Completer
}

// NewAnalyzer creates an analyzer over c.
func NewAnalyzer(c Completer) *Analyzer {
	return &Analyzer{c: c}
}

// Analyze sends the most recent WindowSize entries in one request and
// returns the parsed analysis. Every failure yields mood.FallbackAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, entries []mood.Entry) mood.Analysis {
	window := Window(entries)

	prompt, err := analysisPrompt(window)
	if err != nil {
		log.Printf("[analyzer] failed to build prompt: %v", err)
		return mood.FallbackAnalysis()
	}

	content, err := a.c.Complete(ctx, Request{
		System:      analystPersona,
		User:        prompt,
		Temperature: analystTemperature,
		MaxTokens:   analystMaxTokens,
	})
	if err != nil {
		log.Printf("[analyzer] completion failed: %v", err)
		return mood.FallbackAnalysis()
	}

	analysis, err := parseAnalysis(content)
	if err != nil {
		log.Printf("[analyzer] %v", err)
		return mood.FallbackAnalysis()
	}
	return analysis
}

// Tips asks for 3-5 short suggestions about the recent window. Returns an
// empty list on any failure.
func (a *Analyzer) Tips(ctx context.Context, entries []mood.Entry) []string {
	data, err := json.Marshal(promptEntries(Window(entries)))
	if err != nil {
		log.Printf("[analyzer] failed to encode entries: %v", err)
		return []string{}
	}

	content, err := a.c.Complete(ctx, Request{
		System:      tipsPersona,
		User:        string(data),
		Temperature: tipsTemperature,
		MaxTokens:   tipsMaxTokens,
	})
	if err != nil {
		log.Printf("[analyzer] tips failed: %v", err)
		return []string{}
	}

	tips := []string{}
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tips = append(tips, line)
		}
	}
	return tips
}

// promptEntry is the per-entry shape sent to the completion service.
// Identity fields are left out.
type promptEntry struct {
	Mood      mood.Mood      `json:"mood"`
	Intensity int            `json:"intensity"`
	Timestamp time.Time      `json:"timestamp"`
	Source    mood.Source    `json:"source"`
	Metadata  *mood.Metadata `json:"metadata,omitempty"`
}

func promptEntries(entries []mood.Entry) []promptEntry {
	out := make([]promptEntry, len(entries))
	for i, e := range entries {
		out[i] = promptEntry{
			Mood:      e.Mood,
			Intensity: e.Intensity,
			Timestamp: e.Timestamp,
			Source:    e.Source,
			Metadata:  e.Metadata,
		}
	}
	return out
}

func analysisPrompt(window []mood.Entry) (string, error) {
	data, err := json.MarshalIndent(promptEntries(window), "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Analyze the following mood entries (newest first) and provide emotional insights:\n")
	b.Write(data)
	b.WriteString("\n\nPlease provide:\n")
	b.WriteString("1. The dominant mood pattern\n")
	b.WriteString("2. Emotional trends over time\n")
	b.WriteString("3. Specific insights with confidence levels between 0 and 1\n")
	b.WriteString("4. Actionable suggestions for emotional well-being\n\n")
	b.WriteString("Respond with a single JSON object matching this schema:\n")
	b.WriteString(analysisSchema())
	return b.String(), nil
}

// wireAnalysis accepts both snake_case and camelCase dominant mood keys.
type wireAnalysis struct {
	DominantMood      string         `json:"dominant_mood"`
	DominantMoodCamel string         `json:"dominantMood"`
	Trends            []string       `json:"trends"`
	Insights          []mood.Insight `json:"insights"`
	Summary           string         `json:"summary"`
}

var errEmptyResponse = stderrors.New("empty response")

// parseAnalysis decodes completion output into an Analysis. Code fences
// are stripped, confidence is clamped to [0,1], missing lists become empty
// and unknown mood labels pass through.
func parseAnalysis(content string) (mood.Analysis, error) {
	content = cleanJSONContent(content)
	if content == "" {
		return mood.Analysis{}, errors.NewMalformedResponse(errEmptyResponse)
	}

	var w wireAnalysis
	if err := json.Unmarshal([]byte(content), &w); err != nil {
		return mood.Analysis{}, errors.NewMalformedResponse(err)
	}

	dominant := strings.TrimSpace(w.DominantMood)
	if dominant == "" {
		dominant = strings.TrimSpace(w.DominantMoodCamel)
	}
	summary := strings.TrimSpace(w.Summary)
	if dominant == "" && summary == "" {
		return mood.Analysis{}, errors.NewMalformedResponse(fmt.Errorf("no dominant mood or summary"))
	}

	a := mood.Analysis{
		DominantMood: dominant,
		Trends:       w.Trends,
		Insights:     w.Insights,
		Summary:      summary,
	}
	if a.Trends == nil {
		a.Trends = []string{}
	}
	if a.Insights == nil {
		a.Insights = []mood.Insight{}
	}
	for i := range a.Insights {
		a.Insights[i].Confidence = clamp01(a.Insights[i].Confidence)
	}
	return a, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// cleanJSONContent strips markdown code fences around a JSON payload.
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") && len(content) >= 6 {
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimPrefix(content, "json")
		content = strings.TrimSpace(content)
	}
	return content
}
