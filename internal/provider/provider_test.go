package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stellarlinkco/dailylog/internal/event"
)

func testClient(t *testing.T, openAI, anthropic, gemini string) *Client {
	t.Helper()
	return NewClient(
		WithBaseURLs(openAI, anthropic, gemini),
		WithRetryDelay(time.Millisecond),
	)
}

func openAISuccess(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
			t.Errorf("missing bearer auth, got %q", auth)
		}
		json.NewEncoder(w).Encode(map[string]any{"output_text": text})
	}))
}

func TestQueryAll_AllProvidersSucceed(t *testing.T) {
	openAI := openAISuccess(t, "openai says hi")
	defer openAI.Close()

	anthropic := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") == "" || r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic headers")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "claude says hi"}},
		})
	}))
	defer anthropic.Close()

	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gk" {
			t.Errorf("missing key query param, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "gemini says hi"}}}},
			},
		})
	}))
	defer gemini.Close()

	c := testClient(t, openAI.URL, anthropic.URL, gemini.URL)
	events := c.QueryAll(context.Background(), Settings{
		Prompt:    "what did we do yesterday",
		OpenAIKey: "ok", OpenAIModel: "gpt-4o-mini",
		AnthropicKey: "ak", AnthropicModel: "claude-3-5-sonnet-latest",
		GeminiKey: "gk", GeminiModel: "gemini-1.5-flash",
	})

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	bySource := map[event.Source]event.NormalizedEvent{}
	for _, e := range events {
		bySource[e.Source] = e
		if e.Topic != "Cross-AI API Query" {
			t.Errorf("topic = %q", e.Topic)
		}
		if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
			t.Errorf("timestamp %q does not parse: %v", e.Timestamp, err)
		}
	}
	if bySource[event.SourceChatGPT].OneLineSummary != "openai says hi" {
		t.Errorf("openai summary = %q", bySource[event.SourceChatGPT].OneLineSummary)
	}
	if bySource[event.SourceClaude].RawRef != "anthropic-api" {
		t.Errorf("anthropic rawRef = %q", bySource[event.SourceClaude].RawRef)
	}
	if bySource[event.SourceGemini].OneLineSummary != "gemini says hi" {
		t.Errorf("gemini summary = %q", bySource[event.SourceGemini].OneLineSummary)
	}
}

func TestQueryAll_EmptyPromptQueriesNothing(t *testing.T) {
	c := testClient(t, "http://unused", "http://unused", "http://unused")
	events := c.QueryAll(context.Background(), Settings{Prompt: "   ", OpenAIKey: "k"})
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestQueryAll_OnlyConfiguredProvidersQueried(t *testing.T) {
	var calls int32
	openAI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]any{"output_text": "hi"})
	}))
	defer openAI.Close()

	c := testClient(t, openAI.URL, "http://unreachable.invalid", "http://unreachable.invalid")
	events := c.QueryAll(context.Background(), Settings{Prompt: "p", OpenAIKey: "k", OpenAIModel: "m"})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("openai called %d times, want 1", calls)
	}
}

func TestQueryAll_FailingProviderBecomesErrorEvent(t *testing.T) {
	openAI := openAISuccess(t, "fine")
	defer openAI.Close()

	anthropic := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "model not found"},
		})
	}))
	defer anthropic.Close()

	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "ok"}}}},
			},
		})
	}))
	defer gemini.Close()

	c := testClient(t, openAI.URL, anthropic.URL, gemini.URL)
	events := c.QueryAll(context.Background(), Settings{
		Prompt:    "p",
		OpenAIKey: "a", OpenAIModel: "m",
		AnthropicKey: "b", AnthropicModel: "m",
		GeminiKey: "c", GeminiModel: "m",
	})

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (failure must not drop the provider)", len(events))
	}
	var failing *event.NormalizedEvent
	for i := range events {
		if events[i].Source == event.SourceClaude {
			failing = &events[i]
		}
	}
	if failing == nil {
		t.Fatal("no claude event")
	}
	if !strings.Contains(failing.OneLineSummary, "Anthropic error:") {
		t.Errorf("summary = %q, want provider error prefix", failing.OneLineSummary)
	}
	if !strings.Contains(failing.OneLineSummary, "model not found") {
		t.Errorf("summary = %q, want upstream message", failing.OneLineSummary)
	}
	if failing.RawRef != "anthropic-api-error" {
		t.Errorf("rawRef = %q", failing.RawRef)
	}
}

func TestPostWithRetry_RetriesTransientStatusOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"output_text": "second try"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", "")
	events := c.QueryAll(context.Background(), Settings{Prompt: "p", OpenAIKey: "k", OpenAIModel: "m"})

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("underlying calls = %d, want 2", got)
	}
	if len(events) != 1 || events[0].OneLineSummary != "second try" {
		t.Errorf("events = %+v, want single success", events)
	}
}

func TestPostWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"error": "bad api key"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", "")
	events := c.QueryAll(context.Background(), Settings{Prompt: "p", OpenAIKey: "k", OpenAIModel: "m"})

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("underlying calls = %d, want 1 (401 is not retryable)", got)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if !strings.Contains(events[0].OneLineSummary, "OpenAI error:") ||
		!strings.Contains(events[0].OneLineSummary, "bad api key") {
		t.Errorf("summary = %q", events[0].OneLineSummary)
	}
}

func TestPostWithRetry_ExhaustedRetriesProduceHTTPError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", "")
	events := c.QueryAll(context.Background(), Settings{Prompt: "p", OpenAIKey: "k", OpenAIModel: "m"})

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("underlying calls = %d, want 2", got)
	}
	if !strings.Contains(events[0].OneLineSummary, "OpenAI error: OpenAI request failed (503)") {
		t.Errorf("summary = %q", events[0].OneLineSummary)
	}
}

func TestErrorDetailFromBody(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"message":"top level"}`, "top level"},
		{`{"error":"string error"}`, "string error"},
		{`{"error":{"type":"invalid_request_error","message":"bad model"}}`, "invalid_request_error - bad model"},
		{`{"error":{"status":"INVALID_ARGUMENT","message":"bad arg"}}`, "INVALID_ARGUMENT - bad arg"},
		{`not json`, ""},
		{`{}`, ""},
	}
	for _, tc := range cases {
		if got := errorDetailFromBody([]byte(tc.body)); got != tc.want {
			t.Errorf("errorDetailFromBody(%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  lots   of\n whitespace  "); got != "lots of whitespace" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("   "); got != "No technical response content." {
		t.Errorf("truncate empty = %q", got)
	}
	long := strings.Repeat("a", 500)
	got := truncate(long)
	if len(got) != 240 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate long: len=%d suffix=%q", len(got), got[len(got)-3:])
	}
}

func TestTruncate_MultiByteBoundary(t *testing.T) {
	// The one-byte prefix puts the 237-byte cut inside a 3-byte rune;
	// truncate must back off to the rune start instead of emitting a
	// split sequence.
	long := "a" + strings.Repeat("統", 200)
	got := truncate(long)
	if !utf8.ValidString(got) {
		t.Errorf("truncated string is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("missing ellipsis suffix: %q", got)
	}
	if len(got) > 240 {
		t.Errorf("len = %d, want <= 240", len(got))
	}
}

func TestNetworkErrorMessage(t *testing.T) {
	err := &NetworkError{Provider: "Gemini", Err: context.DeadlineExceeded}
	msg := err.Error()
	if !strings.HasPrefix(msg, "Gemini network error: ") || !strings.Contains(msg, "Check internet") {
		t.Errorf("message = %q", msg)
	}
}
