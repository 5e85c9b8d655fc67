package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/mood"
)

// chatRequest is the subset of the request body the fake server inspects.
type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []chatRequest
	auth     []string
	paths    []string

	status  int
	content string
	raw     string
}

func newFakeServer(t *testing.T, content string) *fakeServer {
	t.Helper()
	f := &fakeServer{status: http.StatusOK, content: content}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.paths = append(f.paths, r.URL.Path)
	status, content, raw := f.status, f.content, f.raw
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"message":"upstream failure","type":"server_error"}}`)
		return
	}
	if raw != "" {
		fmt.Fprint(w, raw)
		return
	}
	body := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeServer) calls() []chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatRequest(nil), f.requests...)
}

func (f *fakeServer) headers() (auth, paths []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...), append([]string(nil), f.paths...)
}

func (f *fakeServer) set(fn func(f *fakeServer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeServer) client(token string) *Client {
	return NewClient(ClientConfig{Endpoint: f.URL, Model: "gpt-4o", Token: token, Timeout: 5 * time.Second})
}

func makeEntries(n int) []mood.Entry {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	entries := make([]mood.Entry, n)
	// Newest first
	for i := 0; i < n; i++ {
		entries[i] = mood.Entry{
			ID:        fmt.Sprintf("e%02d", i),
			UserID:    "u1",
			Mood:      mood.Moods[i%len(mood.Moods)],
			Intensity: 1 + i%10,
			Timestamp: base.Add(-time.Duration(i) * time.Hour),
			Source:    mood.SourceManual,
		}
	}
	return entries
}

// promptWindow extracts the serialized entries from an analysis prompt.
func promptWindow(t *testing.T, prompt string) []promptEntry {
	t.Helper()
	_, rest, ok := strings.Cut(prompt, "\n")
	require.True(t, ok)
	body, _, ok := strings.Cut(rest, "\n\nPlease provide:")
	require.True(t, ok)
	var out []promptEntry
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

const validAnalysis = `{
  "dominant_mood": "calm",
  "trends": ["Mornings are calmer"],
  "insights": [{"pattern": "Evening dips", "confidence": 0.8, "description": "Lower energy after 6pm", "suggestions": ["Take a walk"]}],
  "summary": "Mostly steady."
}`

func TestClient_MissingToken(t *testing.T) {
	srv := newFakeServer(t, "hi")
	c := srv.client("")

	_, err := c.Complete(context.Background(), Request{System: "s", User: "u"})
	require.True(t, errors.Is(err, errors.ErrConfiguration))
	require.Contains(t, err.Error(), "AI service not configured")
	require.Empty(t, srv.calls(), "no request without a credential")
	require.False(t, c.Configured())
}

func TestClient_SendsRequest(t *testing.T) {
	srv := newFakeServer(t, "hello there")
	c := srv.client("secret-token")

	got, err := c.Complete(context.Background(), Request{System: "sys", User: "usr", Temperature: 0.8, MaxTokens: 500})
	require.NoError(t, err)
	require.Equal(t, "hello there", got)

	calls := srv.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "gpt-4o", calls[0].Model)
	require.InDelta(t, 0.8, calls[0].Temperature, 1e-9)
	require.Equal(t, 500, calls[0].MaxTokens)
	require.Len(t, calls[0].Messages, 2)
	require.Equal(t, "system", calls[0].Messages[0].Role)
	require.Equal(t, "sys", calls[0].Messages[0].Content)
	require.Equal(t, "user", calls[0].Messages[1].Role)
	require.Equal(t, "usr", calls[0].Messages[1].Content)
	auth, paths := srv.headers()
	require.Equal(t, "Bearer secret-token", auth[0])
	require.Equal(t, "/chat/completions", paths[0])
}

func TestClient_ServerErrorNotRetried(t *testing.T) {
	srv := newFakeServer(t, "")
	srv.set(func(f *fakeServer) { f.status = http.StatusInternalServerError })
	c := srv.client("tok")

	_, err := c.Complete(context.Background(), Request{System: "s", User: "u"})
	require.True(t, errors.Is(err, errors.ErrServiceUnavailable))
	require.Len(t, srv.calls(), 1, "requests must not be retried")
}

func TestClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{Token: " t "})
	require.Equal(t, "gpt-4o", c.Model())
	require.Equal(t, "https://models.inference.ai.azure.com", c.baseURL)
	require.True(t, c.Configured())
}

func TestAnalyze_Success(t *testing.T) {
	srv := newFakeServer(t, validAnalysis)
	a := NewAnalyzer(srv.client("tok"))

	got := a.Analyze(context.Background(), makeEntries(5))
	require.Equal(t, "calm", got.DominantMood)
	require.Equal(t, []string{"Mornings are calmer"}, got.Trends)
	require.Len(t, got.Insights, 1)
	require.Equal(t, "Evening dips", got.Insights[0].Pattern)
	require.InDelta(t, 0.8, got.Insights[0].Confidence, 1e-9)
	require.Equal(t, []string{"Take a walk"}, got.Insights[0].Suggestions)
	require.Equal(t, "Mostly steady.", got.Summary)

	calls := srv.calls()
	require.Len(t, calls, 1)
	require.InDelta(t, 0.7, calls[0].Temperature, 1e-9)
	require.Equal(t, 1000, calls[0].MaxTokens)
	require.Contains(t, calls[0].Messages[0].Content, "emotional pattern analysis")
	require.Contains(t, calls[0].Messages[1].Content, `"dominant_mood"`, "prompt carries the schema")
}

func TestAnalyze_Window(t *testing.T) {
	for _, n := range []int{5, 20, 25} {
		t.Run(fmt.Sprintf("%d entries", n), func(t *testing.T) {
			srv := newFakeServer(t, validAnalysis)
			a := NewAnalyzer(srv.client("tok"))
			entries := makeEntries(n)

			a.Analyze(context.Background(), entries)

			calls := srv.calls()
			require.Len(t, calls, 1)
			sent := promptWindow(t, calls[0].Messages[1].Content)
			want := n
			if want > WindowSize {
				want = WindowSize
			}
			require.Len(t, sent, want)
			// Exactly the most recent ones, in order
			for i := range sent {
				require.True(t, sent[i].Timestamp.Equal(entries[i].Timestamp))
			}
			require.NotContains(t, calls[0].Messages[1].Content, `"user_id"`)
		})
	}
}

func TestAnalyze_Fallback(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeServer)
	}{
		{"non-200", func(f *fakeServer) { f.status = http.StatusServiceUnavailable }},
		{"unparsable content", func(f *fakeServer) { f.content = "I think you are mostly calm." }},
		{"empty content", func(f *fakeServer) { f.content = "" }},
		{"no choices", func(f *fakeServer) { f.raw = `{"id":"x","object":"chat.completion","created":0,"model":"gpt-4o","choices":[]}` }},
		{"empty object", func(f *fakeServer) { f.content = "{}" }},
		{"garbage body", func(f *fakeServer) { f.raw = "<html>oops</html>" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t, "")
			srv.set(tt.setup)
			a := NewAnalyzer(srv.client("tok"))

			got := a.Analyze(context.Background(), makeEntries(6))
			require.True(t, got.IsFallback(), "got %+v", got)
			require.Equal(t, mood.FallbackAnalysis(), got)
		})
	}
}

func TestAnalyze_FallbackOnNetworkError(t *testing.T) {
	srv := newFakeServer(t, validAnalysis)
	c := srv.client("tok")
	srv.Close()

	got := NewAnalyzer(c).Analyze(context.Background(), makeEntries(5))
	require.True(t, got.IsFallback())
}

func TestAnalyze_FallbackWithoutToken(t *testing.T) {
	srv := newFakeServer(t, validAnalysis)

	got := NewAnalyzer(srv.client("")).Analyze(context.Background(), makeEntries(5))
	require.True(t, got.IsFallback())
	require.Empty(t, srv.calls())
}

func TestParseAnalysis(t *testing.T) {
	t.Run("code fence", func(t *testing.T) {
		got, err := parseAnalysis("```json\n" + validAnalysis + "\n```")
		require.NoError(t, err)
		require.Equal(t, "calm", got.DominantMood)
	})

	t.Run("clamps confidence", func(t *testing.T) {
		got, err := parseAnalysis(`{"dominant_mood":"happy","summary":"s","insights":[{"pattern":"a","confidence":1.7},{"pattern":"b","confidence":-0.2}]}`)
		require.NoError(t, err)
		require.Equal(t, 1.0, got.Insights[0].Confidence)
		require.Equal(t, 0.0, got.Insights[1].Confidence)
	})

	t.Run("unknown mood passes through", func(t *testing.T) {
		got, err := parseAnalysis(`{"dominant_mood":"contemplative","summary":"s"}`)
		require.NoError(t, err)
		require.Equal(t, "contemplative", got.DominantMood)
		require.NotNil(t, got.Trends)
		require.NotNil(t, got.Insights)
	})

	t.Run("camelCase key", func(t *testing.T) {
		got, err := parseAnalysis(`{"dominantMood":"sad","trends":["t"],"insights":[],"summary":"s"}`)
		require.NoError(t, err)
		require.Equal(t, "sad", got.DominantMood)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := parseAnalysis(`{"trends":["x"]}`)
		require.True(t, errors.Is(err, errors.ErrMalformedResponse))

		_, err = parseAnalysis("   ")
		require.True(t, errors.Is(err, errors.ErrMalformedResponse))

		_, err = parseAnalysis(`[1,2,3]`)
		require.True(t, errors.Is(err, errors.ErrMalformedResponse))
	})
}

func TestAnalysisSchema(t *testing.T) {
	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(analysisSchema()), &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"dominant_mood", "trends", "insights", "summary"} {
		require.Contains(t, props, key)
	}
}

func TestTips(t *testing.T) {
	srv := newFakeServer(t, "1. Sleep more\n\n  2. Walk daily  \n3. Call a friend\n")
	a := NewAnalyzer(srv.client("tok"))

	tips := a.Tips(context.Background(), makeEntries(30))
	require.Equal(t, []string{"1. Sleep more", "2. Walk daily", "3. Call a friend"}, tips)

	calls := srv.calls()
	require.Len(t, calls, 1)
	require.Equal(t, 400, calls[0].MaxTokens)
	require.InDelta(t, 0.7, calls[0].Temperature, 1e-9)
	var sent []promptEntry
	require.NoError(t, json.Unmarshal([]byte(calls[0].Messages[1].Content), &sent))
	require.Len(t, sent, WindowSize)
}

func TestTips_Failure(t *testing.T) {
	srv := newFakeServer(t, "")
	srv.set(func(f *fakeServer) { f.status = http.StatusBadGateway })

	tips := NewAnalyzer(srv.client("tok")).Tips(context.Background(), makeEntries(5))
	require.NotNil(t, tips)
	require.Empty(t, tips)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	srv := newFakeServer(t, "answer")
	r := NewResponder(srv.client("tok"))

	for _, q := range []string{"", "   \n\t"} {
		_, err := r.Ask(context.Background(), q, makeEntries(3))
		require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	}
	require.Empty(t, srv.calls(), "empty question must not reach the service")
}

func TestAsk_Success(t *testing.T) {
	srv := newFakeServer(t, "You've been mostly calm this week.")
	r := NewResponder(srv.client("tok"))
	entries := makeEntries(25)

	got, err := r.Ask(context.Background(), "  How am I doing?  ", entries)
	require.NoError(t, err)
	require.Equal(t, "You've been mostly calm this week.", got)

	calls := srv.calls()
	require.Len(t, calls, 1)
	require.InDelta(t, 0.8, calls[0].Temperature, 1e-9)
	require.Equal(t, 500, calls[0].MaxTokens)
	require.Contains(t, calls[0].Messages[0].Content, "supportive AI assistant")

	user := calls[0].Messages[1].Content
	require.True(t, strings.HasPrefix(user, "Context: {"))
	require.True(t, strings.HasSuffix(user, "\n\nQuestion: How am I doing?"))

	ctxJSON := strings.TrimSuffix(strings.TrimPrefix(user, "Context: "), "\n\nQuestion: How am I doing?")
	var sent askContext
	require.NoError(t, json.Unmarshal([]byte(ctxJSON), &sent))
	require.Len(t, sent.Entries, 25, "the full context is sent")
}

func TestAsk_EmptyAnswer(t *testing.T) {
	srv := newFakeServer(t, "")
	got, err := NewResponder(srv.client("tok")).Ask(context.Background(), "why?", nil)
	require.NoError(t, err)
	require.Equal(t, EmptyAnswer, got)
}

func TestAsk_Failure(t *testing.T) {
	srv := newFakeServer(t, "")
	srv.set(func(f *fakeServer) { f.status = http.StatusInternalServerError })

	got, err := NewResponder(srv.client("tok")).Ask(context.Background(), "What patterns do you notice?", makeEntries(5))
	require.NoError(t, err)
	require.Equal(t, ErrorAnswer, got)

	got, err = NewResponder(srv.client("")).Ask(context.Background(), "What patterns do you notice?", makeEntries(5))
	require.NoError(t, err)
	require.Equal(t, ErrorAnswer, got)
}
