package ops

import (
	"context"
	"database/sql"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/moodlog/internal/db"
	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/live"
	"github.com/hpungsan/moodlog/internal/mood"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func session(id string) *mood.Session {
	return &mood.Session{ID: id, Email: id + "@example.com", CreatedAt: time.Now(), LastActive: time.Now()}
}

func appendN(t *testing.T, database *sql.DB, sess *mood.Session, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := Append(context.Background(), database, nil, sess, AppendInput{Mood: "happy", Intensity: 7, Source: "manual"})
		require.NoError(t, err)
	}
}

func floatPtr(f float64) *float64 { return &f }

func countRows(t *testing.T, database *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM mood_entries`).Scan(&n))
	return n
}

// spyAnalyzer records calls instead of contacting a completion service.
type spyAnalyzer struct {
	mu        sync.Mutex
	analyzed  [][]mood.Entry
	tipsCalls int
}

func (s *spyAnalyzer) Analyze(_ context.Context, entries []mood.Entry) mood.Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzed = append(s.analyzed, entries)
	return mood.Analysis{DominantMood: "happy", Trends: []string{}, Insights: []mood.Insight{}, Summary: "ok"}
}

func (s *spyAnalyzer) Tips(context.Context, []mood.Entry) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tipsCalls++
	return []string{"Keep it up"}
}

type spyResponder struct {
	question string
	entries  []mood.Entry
	calls    int
}

func (s *spyResponder) Ask(_ context.Context, q string, entries []mood.Entry) (string, error) {
	s.calls++
	s.question = q
	s.entries = entries
	return "answer", nil
}

func TestAppend_Unauthenticated(t *testing.T) {
	database := setupDB(t)

	_, err := Append(context.Background(), database, nil, nil, AppendInput{Mood: "happy", Intensity: 7})
	require.True(t, errors.Is(err, errors.ErrUnauthenticated))

	_, err = Append(context.Background(), database, nil, &mood.Session{}, AppendInput{Mood: "happy", Intensity: 7})
	require.True(t, errors.Is(err, errors.ErrUnauthenticated))

	require.Equal(t, 0, countRows(t, database), "no write without a session")
}

func TestAppend_Validation(t *testing.T) {
	database := setupDB(t)
	sess := session("u1")

	tests := []struct {
		name  string
		input AppendInput
	}{
		{"unknown mood", AppendInput{Mood: "bored", Intensity: 5}},
		{"empty mood", AppendInput{Mood: "", Intensity: 5}},
		{"intensity zero", AppendInput{Mood: "calm", Intensity: 0}},
		{"intensity eleven", AppendInput{Mood: "calm", Intensity: 11}},
		{"unknown source", AppendInput{Mood: "calm", Intensity: 5, Source: "tidal"}},
		{"NaN tempo", AppendInput{Mood: "calm", Intensity: 5, Metadata: &mood.Metadata{Tempo: floatPtr(math.NaN())}}},
		{"infinite tempo", AppendInput{Mood: "calm", Intensity: 5, Metadata: &mood.Metadata{Tempo: floatPtr(math.Inf(1))}}},
		{"negative infinite energy", AppendInput{Mood: "calm", Intensity: 5, Metadata: &mood.Metadata{Energy: floatPtr(math.Inf(-1))}}},
		{"NaN energy", AppendInput{Mood: "calm", Intensity: 5, Metadata: &mood.Metadata{Energy: floatPtr(math.NaN())}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Append(context.Background(), database, nil, sess, tt.input)
			require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
		})
	}
	require.Equal(t, 0, countRows(t, database))
}

func TestAppend_AssignsServerFields(t *testing.T) {
	database := setupDB(t)
	sess := session("u1")

	tempo := 120.0
	out, err := Append(context.Background(), database, nil, sess, AppendInput{
		Mood:      " Melancholic ",
		Intensity: 3,
		Source:    "Apple Music",
		Metadata:  &mood.Metadata{Tracks: []string{"Track"}, Tempo: &tempo},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.ID)
	require.Equal(t, "u1", out.UserID)
	require.Equal(t, mood.Melancholic, out.Mood)
	require.Equal(t, mood.SourceAppleMusic, out.Source)
	require.False(t, out.Timestamp.IsZero())
	require.NotNil(t, out.Metadata)

	// Source defaults to manual; empty metadata is dropped
	out, err = Append(context.Background(), database, nil, sess, AppendInput{Mood: "calm", Intensity: 1, Metadata: &mood.Metadata{}})
	require.NoError(t, err)
	require.Equal(t, mood.SourceManual, out.Source)
	require.Nil(t, out.Metadata)
}

func TestAppend_PublishesToSubscribers(t *testing.T) {
	database := setupDB(t)
	hub := live.NewHub(live.DBLoader(database))
	defer hub.Close()
	ctx := context.Background()
	sess := session("u1")

	sub, err := Subscribe(ctx, hub, sess)
	require.NoError(t, err)
	defer sub.Cancel()
	require.Empty(t, (<-sub.Updates()).Entries)

	out, err := Append(ctx, database, hub, sess, AppendInput{Mood: "excited", Intensity: 9})
	require.NoError(t, err)

	select {
	case snap := <-sub.Updates():
		require.Len(t, snap.Entries, 1)
		require.Equal(t, out.ID, snap.Entries[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after append")
	}
}

func TestSubscribe_NilSession(t *testing.T) {
	database := setupDB(t)
	hub := live.NewHub(live.DBLoader(database))
	defer hub.Close()

	sub, err := Subscribe(context.Background(), hub, nil)
	require.NoError(t, err)
	snap, ok := <-sub.Updates()
	require.True(t, ok)
	require.Empty(t, snap.Entries)
	_, ok = <-sub.Updates()
	require.False(t, ok)
}

func TestList(t *testing.T) {
	database := setupDB(t)
	sess := session("u1")
	appendN(t, database, sess, 25)
	appendN(t, database, session("other"), 3)

	out, err := List(database, sess, ListInput{})
	require.NoError(t, err)
	require.Len(t, out.Items, DefaultListLimit)
	require.Equal(t, 25, out.Pagination.Total)
	require.True(t, out.Pagination.HasMore)
	require.Equal(t, "timestamp_desc", out.Sort)

	out, err = List(database, sess, ListInput{Limit: 500, Offset: 20})
	require.NoError(t, err)
	require.Equal(t, MaxListLimit, out.Pagination.Limit)
	require.Len(t, out.Items, 5)
	require.False(t, out.Pagination.HasMore)

	_, err = List(database, nil, ListInput{})
	require.True(t, errors.Is(err, errors.ErrUnauthenticated))
}

func TestInsights_Gate(t *testing.T) {
	tests := []struct {
		entries int
		message string
	}{
		{0, "Track 5 more moods to unlock AI-powered insights"},
		{3, "Track 2 more moods to unlock AI-powered insights"},
		{4, "Track 1 more mood to unlock AI-powered insights"},
	}
	for _, tt := range tests {
		database := setupDB(t)
		sess := session("u1")
		appendN(t, database, sess, tt.entries)
		spy := &spyAnalyzer{}

		out, err := Insights(context.Background(), database, spy, sess)
		require.NoError(t, err)
		require.False(t, out.Eligible)
		require.Equal(t, tt.entries, out.EntryCount)
		require.Equal(t, 5-tt.entries, out.Needed)
		require.Equal(t, tt.message, out.Message)
		require.Nil(t, out.Analysis)
		require.Empty(t, spy.analyzed, "analyzer must not be invoked below the threshold")
	}
}

func TestInsights_Eligible(t *testing.T) {
	database := setupDB(t)
	sess := session("u1")
	appendN(t, database, sess, 5)
	spy := &spyAnalyzer{}

	out, err := Insights(context.Background(), database, spy, sess)
	require.NoError(t, err)
	require.True(t, out.Eligible)
	require.NotNil(t, out.Analysis)
	require.Equal(t, "happy", out.Analysis.DominantMood)
	require.False(t, out.Fallback)
	require.Len(t, spy.analyzed, 1)
	require.Len(t, spy.analyzed[0], 5)
}

func TestInsights_Unauthenticated(t *testing.T) {
	database := setupDB(t)
	spy := &spyAnalyzer{}

	_, err := Insights(context.Background(), database, spy, nil)
	require.True(t, errors.Is(err, errors.ErrUnauthenticated))
	require.Empty(t, spy.analyzed)
}

func TestTips(t *testing.T) {
	database := setupDB(t)
	sess := session("u1")
	spy := &spyAnalyzer{}

	appendN(t, database, sess, 2)
	out, err := Tips(context.Background(), database, spy, sess)
	require.NoError(t, err)
	require.False(t, out.Eligible)
	require.NotNil(t, out.Tips)
	require.Equal(t, 0, spy.tipsCalls)

	appendN(t, database, sess, 3)
	out, err = Tips(context.Background(), database, spy, sess)
	require.NoError(t, err)
	require.True(t, out.Eligible)
	require.Equal(t, []string{"Keep it up"}, out.Tips)
	require.Equal(t, 1, spy.tipsCalls)
}

func TestAsk(t *testing.T) {
	database := setupDB(t)
	sess := session("u1")
	appendN(t, database, sess, 3)
	spy := &spyResponder{}

	_, err := Ask(context.Background(), database, spy, sess, "   ")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Equal(t, 0, spy.calls)

	_, err = Ask(context.Background(), database, spy, nil, "Why?")
	require.True(t, errors.Is(err, errors.ErrUnauthenticated))
	require.Equal(t, 0, spy.calls)

	out, err := Ask(context.Background(), database, spy, sess, " What patterns do you notice? ")
	require.NoError(t, err)
	require.Equal(t, "answer", out.Answer)
	require.Equal(t, "What patterns do you notice?", out.Question)
	require.Equal(t, "What patterns do you notice?", spy.question)
	require.Len(t, spy.entries, 3)
}

func TestTimeline(t *testing.T) {
	database := setupDB(t)
	sess := session("u1")

	out, err := Timeline(database, sess)
	require.NoError(t, err)
	require.True(t, out.Empty)
	require.NotEmpty(t, out.Message)
	require.NotNil(t, out.Points)

	appendN(t, database, sess, 35)
	out, err = Timeline(database, sess)
	require.NoError(t, err)
	require.False(t, out.Empty)
	require.Len(t, out.Points, mood.TimelineLimit)
}

func TestStats(t *testing.T) {
	database := setupDB(t)
	sess := session("u1")
	appendN(t, database, sess, 4)

	s, err := Stats(database, sess)
	require.NoError(t, err)
	require.Equal(t, 4, s.Total)
	require.Equal(t, 4, s.Counts[mood.Happy])
	require.Equal(t, mood.Happy, s.MostFrequent)

	_, err = Stats(database, nil)
	require.True(t, errors.Is(err, errors.ErrUnauthenticated))
}

func TestSuggestedQuestions(t *testing.T) {
	qs := SuggestedQuestions()
	require.Len(t, qs, 4)
	require.Equal(t, "How has my mood changed over time?", qs[0])

	qs[0] = "mutated"
	require.Equal(t, "How has my mood changed over time?", SuggestedQuestions()[0])
}

func TestGateMessage(t *testing.T) {
	require.Equal(t, "Track 1 more mood to unlock AI-powered insights", GateMessage(1))
	require.Equal(t, "Track 3 more moods to unlock AI-powered insights", GateMessage(3))
}
