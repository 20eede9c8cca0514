package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("TEST_LLM_KEY", "test-key")
	return NewOpenAIProvider(srv.URL, "test-model", "TEST_LLM_KEY", 5*time.Second)
}

func testGateway(p Provider, maxRetries int) *Gateway {
	g := NewGateway(p, 6000, 0, maxRetries)
	g.SetBackoff(time.Millisecond, 10*time.Millisecond)
	return g
}

func completionResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestCallSuccess(t *testing.T) {
	var gotZDR, gotAuth string
	var gotBody map[string]any
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotZDR = r.Header.Get("X-Zero-Data-Retention")
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(completionResponse(`{"ok":true}`)))
	})

	g := testGateway(p, 3)
	text, err := g.Call(context.Background(), []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hello"},
	}, Options{Temperature: 0.3, MaxTokens: 512, JSONMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"ok":true}` {
		t.Errorf("unexpected completion text %q", text)
	}
	if gotZDR != "true" {
		t.Error("expected zero-data-retention header on every request")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if rf, ok := gotBody["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
		t.Errorf("expected JSON response mode in request body, got %v", gotBody["response_format"])
	}
	if gotBody["temperature"] != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", gotBody["temperature"])
	}
}

func TestCallRateLimitedTwiceThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionResponse("ok")))
	})

	// maxRetries 0: the two 429s must not consume the general budget.
	g := testGateway(p, 0)
	text, err := g.Call(context.Background(), []Message{{Role: "user", Content: "x"}}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Errorf("unexpected text %q", text)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 provider calls, got %d", calls.Load())
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("empty header: expected 0, got %s", got)
	}
	if got := parseRetryAfter("7"); got != 7*time.Second {
		t.Errorf("delta-seconds: expected 7s, got %s", got)
	}
	if got := parseRetryAfter("-3"); got != 0 {
		t.Errorf("negative delta: expected 0, got %s", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("garbage: expected 0, got %s", got)
	}

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > 30*time.Second {
		t.Errorf("http-date %q: expected a wait within 30s, got %s", future, got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("past http-date: expected 0, got %s", got)
	}
}

func TestCallTransientRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(completionResponse("ok")))
	})

	g := testGateway(p, 3)
	if _, err := g.Call(context.Background(), []Message{{Role: "user", Content: "x"}}, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 provider calls, got %d", calls.Load())
	}
}

func TestCallTransientExhaustsBudget(t *testing.T) {
	var calls atomic.Int32
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	g := testGateway(p, 2)
	_, err := g.Call(context.Background(), []Message{{Role: "user", Content: "x"}}, Options{})
	if err == nil {
		t.Fatal("expected error after retry budget")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 provider calls (1 + 2 retries), got %d", calls.Load())
	}
}

func TestCallPermanentFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	g := testGateway(p, 3)
	_, err := g.Call(context.Background(), []Message{{Role: "user", Content: "x"}}, Options{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsPermanent() {
		t.Fatalf("expected permanent APIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 provider call, got %d", calls.Load())
	}
}

func TestDailyBudget(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionResponse("ok")))
	})

	g := NewGateway(p, 6000, 1, 3)
	g.SetBackoff(time.Millisecond, 10*time.Millisecond)
	if _, err := g.Call(context.Background(), []Message{{Role: "user", Content: "x"}}, Options{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := g.Call(context.Background(), []Message{{Role: "user", Content: "x"}}, Options{})
	if !errors.Is(err, ErrDailyBudget) {
		t.Fatalf("expected ErrDailyBudget, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		expected string
		wantErr  bool
	}{
		{"bare", `{"a": 1}`, `{"a": 1}`, false},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"fenced no lang", "```\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"whitespace", "  {\"a\": 1}\n", `{"a": 1}`, false},
		{"empty", "", "", true},
		{"prose", "Sure, here you go", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := ExtractJSON(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(out) != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, out)
			}
		})
	}
}
