package mood

import (
	"testing"
	"time"
)

func TestParseMood(t *testing.T) {
	tests := []struct {
		input  string
		want   Mood
		wantOK bool
	}{
		{"happy", Happy, true},
		{"  Melancholic ", Melancholic, true},
		{"CALM", Calm, true},
		{"neutral", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseMood(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseMood(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		input  string
		want   Source
		wantOK bool
	}{
		{"manual", SourceManual, true},
		{"Spotify", SourceSpotify, true},
		{"apple music", SourceAppleMusic, true},
		{"apple-music", SourceAppleMusic, true},
		{"youtube", SourceYouTube, true},
		{"tidal", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseSource(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseSource(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValidIntensity(t *testing.T) {
	for n := -1; n <= 12; n++ {
		want := n >= 1 && n <= 10
		if got := ValidIntensity(n); got != want {
			t.Errorf("ValidIntensity(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestMetadata_IsZero(t *testing.T) {
	var nilMeta *Metadata
	if !nilMeta.IsZero() {
		t.Error("nil metadata should be zero")
	}
	if !(&Metadata{}).IsZero() {
		t.Error("empty metadata should be zero")
	}
	tempo := 120.0
	if (&Metadata{Tempo: &tempo}).IsZero() {
		t.Error("metadata with tempo should not be zero")
	}
}

func TestFallbackAnalysis(t *testing.T) {
	a := FallbackAnalysis()
	if a.DominantMood != "neutral" {
		t.Errorf("DominantMood = %q", a.DominantMood)
	}
	if len(a.Trends) != 1 || a.Trends[0] != "Unable to analyze at this time" {
		t.Errorf("Trends = %v", a.Trends)
	}
	if a.Insights == nil || len(a.Insights) != 0 {
		t.Errorf("Insights = %v, want empty non-nil", a.Insights)
	}
	if a.Summary != "Analysis temporarily unavailable. Please try again later." {
		t.Errorf("Summary = %q", a.Summary)
	}
	if !a.IsFallback() {
		t.Error("IsFallback() = false")
	}

	// Copies are independent
	a.Trends[0] = "changed"
	if FallbackAnalysis().Trends[0] != FallbackTrend {
		t.Error("FallbackAnalysis shares state between calls")
	}
}

func TestSession_UserID(t *testing.T) {
	var s *Session
	if s.UserID() != "" {
		t.Error("nil session should have empty user id")
	}
	s = &Session{ID: "u1"}
	if s.UserID() != "u1" {
		t.Errorf("UserID() = %q", s.UserID())
	}
}

func makeEntries(n int) []Entry {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		// newest first
		entries[i] = Entry{
			ID:        string(rune('a' + i)),
			Mood:      Moods[i%len(Moods)],
			Intensity: i%10 + 1,
			Timestamp: base.Add(-time.Duration(i) * 24 * time.Hour),
		}
	}
	return entries
}

func TestTimeline_ChronologicalAndBounded(t *testing.T) {
	entries := makeEntries(40)
	points := Timeline(entries, 0)

	if len(points) != TimelineLimit {
		t.Fatalf("len(points) = %d, want %d", len(points), TimelineLimit)
	}
	// Oldest of the 30 most recent first, newest last
	if points[0].EntryID != entries[TimelineLimit-1].ID {
		t.Errorf("first point = %q, want %q", points[0].EntryID, entries[TimelineLimit-1].ID)
	}
	if points[len(points)-1].EntryID != entries[0].ID {
		t.Errorf("last point = %q, want %q", points[len(points)-1].EntryID, entries[0].ID)
	}
	if points[len(points)-1].Date != "03/01" {
		t.Errorf("Date = %q, want 03/01", points[len(points)-1].Date)
	}
	if points[len(points)-1].Color != Colors[entries[0].Mood] {
		t.Errorf("Color = %q", points[len(points)-1].Color)
	}
}

func TestTimeline_Empty(t *testing.T) {
	points := Timeline(nil, 10)
	if points == nil || len(points) != 0 {
		t.Errorf("Timeline(nil) = %v, want empty slice", points)
	}
}

func TestSummarize(t *testing.T) {
	entries := []Entry{
		{Mood: Happy, Intensity: 8},
		{Mood: Happy, Intensity: 6},
		{Mood: Sad, Intensity: 2},
		{Mood: Calm, Intensity: 4},
	}

	s := Summarize(entries)
	if s.Total != 4 {
		t.Errorf("Total = %d", s.Total)
	}
	if s.Counts[Happy] != 2 || s.Counts[Sad] != 1 {
		t.Errorf("Counts = %v", s.Counts)
	}
	if s.MostFrequent != Happy {
		t.Errorf("MostFrequent = %q", s.MostFrequent)
	}
	if s.MeanIntensity != 5 {
		t.Errorf("MeanIntensity = %v, want 5", s.MeanIntensity)
	}
	if s.MedianIntensity != 5 {
		t.Errorf("MedianIntensity = %v, want 5", s.MedianIntensity)
	}
	if s.StdDevIntensity != 2.24 {
		t.Errorf("StdDevIntensity = %v, want 2.24", s.StdDevIntensity)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.MostFrequent != "" || s.MeanIntensity != 0 {
		t.Errorf("Summarize(nil) = %+v", s)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Hello   World "); got != "hello world" {
		t.Errorf("Normalize = %q", got)
	}
}
